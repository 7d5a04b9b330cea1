package hap

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-hap/controller/transport/ip"
)

// fakeAccessoryServer answers exactly one HTTP/1.1 request with a canned
// status line and body, standing in for a real accessory's HAP-over-HTTP
// listener for facade-level tests.
func fakeAccessoryServer(t *testing.T, status string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		if _, err := reader.ReadString('\n'); err != nil {
			return
		}
		for {
			line, err := reader.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		conn.Write([]byte(status + "\r\nContent-Length: 0\r\n\r\n"))
	}()

	return ln.Addr().String()
}

func TestHTTPClientIdentifySuccess(t *testing.T) {
	addr := fakeAccessoryServer(t, "HTTP/1.1 204 No Content")
	client, err := DialHTTP(addr, ip.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.Identify(); err != nil {
		t.Fatalf("Identify: %v", err)
	}
}

func TestHTTPClientNonSuccessStatusBecomesProtocolError(t *testing.T) {
	addr := fakeAccessoryServer(t, "HTTP/1.1 470 Connection Authorization Required")
	client, err := DialHTTP(addr, ip.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	err = client.Identify()
	if err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
	var protoErr ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("got %T, want ProtocolError", err)
	}
}

func TestHTTPClientIdentityNilBeforePairing(t *testing.T) {
	addr := fakeAccessoryServer(t, "HTTP/1.1 204 No Content")
	client, err := DialHTTP(addr, ip.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if client.Identity() != nil {
		t.Error("Identity should be nil before any PairSetup/PairVerify")
	}
	sessionID, sharedSecret := client.ResumeCredentials()
	if sessionID != nil || sharedSecret != nil {
		t.Error("ResumeCredentials should be nil before any PairVerify/PairResume")
	}
}

func TestHTTPClientDialUnreachableIsTransportError(t *testing.T) {
	// Port 1 on an address with nothing listening; Dial fails fast with a
	// connection-refused error rather than the ConnectTimeout, but either
	// way the result must be a TransportError per the shared taxonomy.
	_, err := DialHTTP("127.0.0.1:1", ip.Config{ConnectTimeout: time.Second})
	if err == nil {
		t.Fatal("expected a dial error")
	}
	var transportErr TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("got %T, want TransportError", err)
	}
}
