package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-hap/controller"
	"github.com/go-hap/controller/model"
	"github.com/go-hap/controller/pairing"
	"github.com/go-hap/controller/transport/ip"
)

var CmdLog = log.New(os.Stderr, filepath.Base(os.Args[0])+": ", 0)

var (
	hostFlag = flag.String("host", "localhost", "Set the host name or IP number to connect with.")
	portFlag = flag.Uint("port", 51826, "Set the TCP port-`number` to connect with.")

	pinFlag      = flag.String("pin", "", "Pair-Setup PIN in NNN-NN-NNN form. Runs Pair-Setup when set.")
	identityFlag = flag.String("identity", "", "`Path` to a JSON-encoded Identity from a previous Pair-Setup.")
	getFlag      = flag.String("get", "", "Comma-separated aid.iid `list` to read via getCharacteristics.")
	traceFlag    = flag.Bool("trace", false, "Log the HAP wire protocol to stdout.")
)

// The connection timing parameters mirror spec.md §5's accessory-facing
// defaults.
var (
	connectTimeoutFlag = flag.Uint("connect-timeout", 10, "TCP connect timeout in `seconds`, must be in range 1 to 120.")
	idleTimeoutFlag    = flag.Uint("idle-timeout", 300, "Idle connection timeout in `seconds`.")
)

func main() {
	log.SetFlags(0)
	flag.Parse()
	if *traceFlag {
		ip.Trace = true
	}

	config := mustIPConfig()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT)

	addr := net.JoinHostPort(*hostFlag, strconv.FormatUint(uint64(*portFlag), 10))
	client, err := hap.DialHTTP(addr, config)
	if err != nil {
		CmdLog.Fatal(err)
	}
	defer client.Close()

	go func() {
		<-signals
		CmdLog.Print("got interrupt, closing connection")
		client.Close()
		os.Exit(130)
	}()

	identity := mustIdentity(client)

	if err := client.PairVerify(identity); err != nil {
		CmdLog.Fatal("pair-verify: ", err)
	}

	if *getFlag != "" {
		chars, err := client.GetCharacteristics(*getFlag, hap.GetCharacteristicsOptions{})
		if err != nil {
			CmdLog.Fatal("get-characteristics: ", err)
		}
		printCharacteristics(chars)
		return
	}

	accessories, err := client.GetAccessories()
	if err != nil {
		CmdLog.Fatal("get-accessories: ", err)
	}
	printAccessories(accessories)
}

// mustIdentity resolves the pairing identity to use: loaded from
// identityFlag's file if set, or freshly established via Pair-Setup when
// pinFlag is set, in which case the result is also saved back to
// identityFlag (or printed to stdout when no path was given).
func mustIdentity(client *hap.HTTPClient) *pairing.Identity {
	if *identityFlag != "" && *pinFlag == "" {
		buf, err := os.ReadFile(*identityFlag)
		if err != nil {
			CmdLog.Fatal("reading identity file: ", err)
		}
		var identity pairing.Identity
		if err := json.Unmarshal(buf, &identity); err != nil {
			CmdLog.Fatal("decoding identity file: ", err)
		}
		return &identity
	}

	if *pinFlag == "" {
		CmdLog.Fatal("neither -identity nor -pin given; nothing to pair-verify with")
	}

	identity, err := client.PairSetup(*pinFlag)
	if err != nil {
		CmdLog.Fatal("pair-setup: ", err)
	}

	buf, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		CmdLog.Fatal("encoding new identity: ", err)
	}
	if *identityFlag == "" {
		fmt.Println(string(buf))
		CmdLog.Print("pair-setup complete; pass -identity next time to skip it")
	} else if err := os.WriteFile(*identityFlag, buf, 0600); err != nil {
		CmdLog.Fatal("saving identity file: ", err)
	}
	return identity
}

func printAccessories(accessories *model.Accessories) {
	for _, a := range accessories.Accessories {
		fmt.Printf("aid %d\n", a.AID)
		for _, s := range a.Services {
			fmt.Printf("  service %s (iid %d)\n", s.Type, s.IID)
			for _, c := range s.Characteristics {
				fmt.Printf("    characteristic %s (iid %d, format %s) = %v\n", c.Type, c.IID, c.Format, c.Value)
			}
		}
	}
}

func printCharacteristics(chars []model.Characteristic) {
	for _, c := range chars {
		fmt.Printf("%d.%d = %v\n", c.AID, c.IID, c.Value)
	}
}

// mustIPConfig reads a Connection configuration from flags, applying the
// same panic-on-out-of-range validation ip.Config.check runs internally.
func mustIPConfig() ip.Config {
	switch {
	case *connectTimeoutFlag == 0:
		CmdLog.Fatal("connect-timeout is zero")
	case *connectTimeoutFlag > 120:
		CmdLog.Fatal("connect-timeout exceeds 120 seconds")
	}
	return ip.Config{
		ConnectTimeout: time.Duration(*connectTimeoutFlag) * time.Second,
		IdleTimeout:    time.Duration(*idleTimeoutFlag) * time.Second,
	}
}
