package gatt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/go-hap/controller/format"
	"github.com/go-hap/controller/framing"
	"github.com/go-hap/controller/haperr"
	"github.com/go-hap/controller/tlv"
)

// Trace activates wire logging, mirroring the teacher's session.Trace
// switch.
var Trace = false

// Peripheral is the minimal BLE central operation set transport/gatt needs:
// a characteristic-scoped write, a blocking read, a channel of indication
// fragments, and the service/characteristic enumeration getAccessories()
// needs to reconstruct the attribute database from GATT discovery alone.
// Callers supply their own binding to whatever BLE stack their platform
// uses.
type Peripheral interface {
	WriteCharacteristic(ctx context.Context, uuid string, data []byte) error
	ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error)
	Indications(uuid string) (<-chan []byte, error)

	// DiscoverServices lists every GATT service UUID the peripheral
	// exposes.
	DiscoverServices(ctx context.Context) ([]string, error)
	// DiscoverCharacteristics lists every characteristic UUID hosted
	// under serviceUUID.
	DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]string, error)
}

// Config tunes Client timing and pacing. Zero fields get HAP defaults;
// out-of-range non-zero values panic (mirrors session.TCPConf.check()).
type Config struct {
	// Watchdog bounds a single GATT operation's round trip. The HAP
	// default is 10 seconds (spec.md §5).
	Watchdog time.Duration
	// OpsPerSecond paces the per-peripheral operation queue.
	OpsPerSecond rate.Limit
	// DiscoveryConcurrency bounds the number of Signature-Read requests
	// run concurrently during instance-ID discovery.
	DiscoveryConcurrency int
}

func (c *Config) check() *Config {
	if c.Watchdog == 0 {
		c.Watchdog = 10 * time.Second
	} else if c.Watchdog < time.Second || c.Watchdog > time.Minute {
		panic("gatt: Watchdog not in [1s, 1m]")
	}
	if c.OpsPerSecond == 0 {
		c.OpsPerSecond = 4
	}
	if c.DiscoveryConcurrency == 0 {
		c.DiscoveryConcurrency = 4
	}
	return c
}

// operation is one queued unit of work against the peripheral, mirroring
// the teacher's channel-of-closures Outbound pattern but specialized to a
// single result type since every GATT PDU exchange shares one shape.
type operation struct {
	run  func(ctx context.Context) (Response, error)
	done chan<- operationResult
}

type operationResult struct {
	resp Response
	err  error
}

// Client drives one paired peripheral's HAP-over-GATT session: PDU
// encoding, per-peripheral single-writer sequentialization (spec.md §5 "1
// RTT at a time"), and instance-ID discovery caching.
type Client struct {
	Config

	peripheral Peripheral
	framer     *framing.Framer

	limiter *rate.Limiter
	queue   chan *operation
	quit    chan struct{}

	txID uint8

	mu  sync.Mutex
	iid map[string]map[string]uint16 // service UUID -> characteristic UUID -> iid
}

// NewClient starts a Client's operation queue against peripheral. Passing
// nil writeKey/readKey leaves the client unencrypted, for Signature-Read
// discovery and the pair-setup/pair-verify ceremonies that precede session
// keys existing; call SetSession once Pair-Verify completes.
func NewClient(peripheral Peripheral, writeKey, readKey []byte, config Config) *Client {
	config.check()
	c := &Client{
		Config:     config,
		peripheral: peripheral,
		limiter:    rate.NewLimiter(config.OpsPerSecond, 1),
		queue:      make(chan *operation),
		quit:       make(chan struct{}),
		iid:        make(map[string]map[string]uint16),
	}
	if writeKey != nil || readKey != nil {
		c.framer = framing.New(writeKey, readKey)
	}
	go c.run()
	return c
}

// SetSession installs the session keys derived at the end of Pair-Verify,
// switching subsequent characteristic writes/reads from cleartext to
// ChaCha20-Poly1305-sealed PDU bodies.
func (c *Client) SetSession(writeKey, readKey []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framer = framing.New(writeKey, readKey)
}

// Close stops the Client's operation queue.
func (c *Client) Close() {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
}

func (c *Client) run() {
	for {
		select {
		case <-c.quit:
			return
		case op := <-c.queue:
			ctx, cancel := context.WithTimeout(context.Background(), c.Watchdog)
			if err := c.limiter.Wait(ctx); err != nil {
				op.done <- operationResult{err: haperr.Transp("rate limiter wait", err)}
				cancel()
				continue
			}
			resp, err := op.run(ctx)
			cancel()
			op.done <- operationResult{resp: resp, err: err}
		}
	}
}

func (c *Client) submit(run func(ctx context.Context) (Response, error)) (Response, error) {
	done := make(chan operationResult, 1)
	op := &operation{run: run, done: done}
	select {
	case c.queue <- op:
	case <-c.quit:
		return Response{}, haperr.Transp("gatt client closed", nil)
	}
	result := <-done
	return result.resp, result.err
}

func (c *Client) nextTxID() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txID++
	return c.txID
}

// exchange performs one request/response PDU round trip against
// characteristicUUID: write the request, then read the characteristic
// back until it returns an empty value, reassembling the fragments.
func (c *Client) exchange(characteristicUUID string, opcode format.Opcode, instanceID uint16, body []byte) (Response, error) {
	return c.submit(func(ctx context.Context) (Response, error) {
		req := Request{TransactionID: c.nextTxID(), Opcode: opcode, InstanceID: instanceID, Body: body}
		wire := req.Marshal()
		c.mu.Lock()
		framer := c.framer
		c.mu.Unlock()
		if framer != nil && len(body) > 0 {
			sealed, err := framer.SealGATT(body)
			if err != nil {
				return Response{}, err
			}
			// a single PDU's TLV body is sealed as one GATT frame per
			// chunk; single-chunk is the overwhelmingly common case.
			wire = append(req.Marshal()[:5], sealed[0]...)
		}

		if Trace {
			fmt.Printf("gatt: %s on %s (iid %d)\n", opcode, characteristicUUID, instanceID)
		}

		if err := c.peripheral.WriteCharacteristic(ctx, characteristicUUID, wire); err != nil {
			return Response{}, haperr.Transp("writing GATT characteristic", err)
		}

		// A PDU response can span more ATT reads than fit in one MTU-sized
		// characteristic value; read repeatedly until the peripheral has
		// nothing left to deliver, then reassemble before parsing
		// (spec.md §4.6).
		var fragments [][]byte
		for {
			frag, err := c.peripheral.ReadCharacteristic(ctx, characteristicUUID)
			if err != nil {
				return Response{}, haperr.Transp("reading GATT characteristic response", err)
			}
			if len(frag) == 0 {
				break
			}
			fragments = append(fragments, frag)
		}
		resp, err := ParseResponse(Reassemble(fragments))
		if err != nil {
			return Response{}, err
		}
		if framer != nil && len(resp.Body) > 0 {
			plain, err := framer.OpenGATT(resp.Body)
			if err != nil {
				return Response{}, haperr.Auth("decrypting GATT response body", err)
			}
			resp.Body = plain
		}
		return resp, nil
	})
}

// DiscoverServices lists the peripheral's GATT services, the starting
// point for reconstructing the attribute database from GATT discovery
// alone (spec.md §4.6).
func (c *Client) DiscoverServices(ctx context.Context) ([]string, error) {
	return c.peripheral.DiscoverServices(ctx)
}

// DiscoverCharacteristics lists serviceUUID's characteristics.
func (c *Client) DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]string, error) {
	return c.peripheral.DiscoverCharacteristics(ctx, serviceUUID)
}

// DiscoverInstanceIDs walks serviceUUIDs' characteristics, issuing a
// Signature-Read per characteristic to learn and cache its instance ID. Reads for distinct characteristics are fanned out
// through a bounded errgroup — still inside the single-writer queue per
// characteristic request, so the "1 RTT at a time" wire contract with the
// peripheral holds; the bound only parallelizes client-side bookkeeping
// across already-sequential PDU round trips.
func (c *Client) DiscoverInstanceIDs(ctx context.Context, services map[string][]string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.DiscoveryConcurrency)

	type found struct {
		service, characteristic string
		iid                     uint16
	}
	results := make(chan found, 64)

	for service, characteristics := range services {
		service := service
		for _, characteristic := range characteristics {
			characteristic := characteristic
			g.Go(func() error {
				resp, err := c.exchange(characteristic, format.SignatureRead, 0, nil)
				if err != nil {
					return err
				}
				if resp.Status != format.StatusSuccess {
					return haperr.Proto(fmt.Sprintf("signature-read on %s: %s", characteristic, resp.Status), nil)
				}
				iid, err := parseSignatureIID(resp.Body)
				if err != nil {
					return err
				}
				select {
				case results <- found{service, characteristic, iid}:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			})
		}
	}

	go func() {
		g.Wait()
		close(results)
	}()

	// Lock per entry, not across the whole drain: in-flight exchange()
	// calls still need c.mu (via nextTxID) to produce the results this
	// loop is waiting on, so holding it for the full range would
	// deadlock.
	for r := range results {
		c.mu.Lock()
		if c.iid[r.service] == nil {
			c.iid[r.service] = make(map[string]uint16)
		}
		c.iid[r.service][r.characteristic] = r.iid
		c.mu.Unlock()
	}

	return g.Wait()
}

// InstanceID returns the cached instance ID discovered for a
// service/characteristic pair, or false if DiscoverInstanceIDs has not
// been run for it yet.
func (c *Client) InstanceID(serviceUUID, characteristicUUID string) (uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.iid[serviceUUID]
	if !ok {
		return 0, false
	}
	iid, ok := m[characteristicUUID]
	return iid, ok
}

// parseSignatureIID extracts the instance ID TLV item (tag 0x07 in the
// HAP-over-GATT characteristic-signature response) from a Signature-Read
// reply body.
func parseSignatureIID(body []byte) (uint16, error) {
	items, err := tlv.Decode(body)
	if err != nil {
		return 0, haperr.Proto("decoding signature response TLV", err)
	}
	value, ok := items.Get(tagInstanceID)
	if !ok || len(value) != 2 {
		return 0, haperr.Proto("signature response missing instance-ID tag", nil)
	}
	return uint16(value[0]) | uint16(value[1])<<8, nil
}
