package hap

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-hap/controller/haperr"
	"github.com/go-hap/controller/model"
	"github.com/go-hap/controller/pairing"
	"github.com/go-hap/controller/transport/ip"
)

// HTTPClient is a HAP-over-HTTP session with one accessory. The zero value
// is not usable; construct with DialHTTP or NewHTTPClient.
type HTTPClient struct {
	conn     *ip.Connection
	identity *pairing.Identity // nil until Pair-Setup, Pair-Verify or Pair-Resume completes

	// resumeSessionID/resumeSharedSecret are cached from the most recent
	// full Pair-Verify (PairVerify, or PairResume's fallback), for a caller that wants to attempt PairResume on its
	// next connection to the same accessory (spec.md §4.3).
	resumeSessionID    []byte
	resumeSharedSecret []byte
}

// DialHTTP opens a TCP connection to addr and returns an unpaired
// HTTPClient. Call PairSetup (first time) or PairVerify/PairResume
// (subsequent connections, given a previously obtained Identity) before any
// other operation.
func DialHTTP(addr string, config ip.Config) (*HTTPClient, error) {
	conn, err := ip.Dial(addr, config)
	if err != nil {
		return nil, asTaxonomy(err)
	}
	return &HTTPClient{conn: conn}, nil
}

// NewHTTPClient wraps an already-open Connection, e.g. one reused across a
// Pair-Resume attempt.
func NewHTTPClient(conn *ip.Connection) *HTTPClient {
	return &HTTPClient{conn: conn}
}

// Close releases the underlying TCP connection.
func (c *HTTPClient) Close() error { return c.conn.Close() }

// Identity returns the pairing identity set by the last successful
// PairSetup, PairVerify or PairResume, or nil if none has completed yet on
// this client.
func (c *HTTPClient) Identity() *pairing.Identity {
	if c.identity == nil {
		return nil
	}
	return c.identity.Clone()
}

func (c *HTTPClient) roundTrip(method, path string, body []byte) ([]byte, error) {
	_, respBody, err := c.roundTripStatus(method, path, body)
	return respBody, err
}

// roundTripStatus is roundTrip plus the response status code, for callers
// that must distinguish plain success from a 207 Multi-Status partial
// failure (setCharacteristics, spec.md §4.7).
func (c *HTTPClient) roundTripStatus(method, path string, body []byte) (status int, respBody []byte, err error) {
	result := c.conn.Submit(ip.NewOutbound(method, path, body))
	if result.Err != nil {
		return 0, nil, asTaxonomy(result.Err)
	}
	if result.Response.StatusCode >= 300 {
		return 0, nil, asTaxonomy(haperr.Proto(fmt.Sprintf("unexpected HTTP status %s", result.Response.Status), nil))
	}
	return result.Response.StatusCode, result.Body, nil
}

// PairSetup runs the full M1-M6 Pair-Setup ceremony using pin (format
// "NNN-NN-NNN") and stores the resulting Identity on success.
func (c *HTTPClient) PairSetup(pin string) (*pairing.Identity, error) {
	client, err := pairing.NewSetupClient(pin)
	if err != nil {
		return nil, asTaxonomy(err)
	}

	m2, err := c.roundTrip("POST", "/pair-setup", client.BuildM1())
	if err != nil {
		return nil, err
	}
	if err := client.ParseM2(m2); err != nil {
		return nil, asTaxonomy(err)
	}

	m3, err := client.BuildM3()
	if err != nil {
		return nil, asTaxonomy(err)
	}
	m4, err := c.roundTrip("POST", "/pair-setup", m3)
	if err != nil {
		return nil, err
	}
	if err := client.ParseM4(m4); err != nil {
		return nil, asTaxonomy(err)
	}

	m5, err := client.BuildM5()
	if err != nil {
		return nil, asTaxonomy(err)
	}
	m6, err := c.roundTrip("POST", "/pair-setup", m5)
	if err != nil {
		return nil, err
	}
	if err := client.ParseM6(m6); err != nil {
		return nil, asTaxonomy(err)
	}

	c.identity = client.Result
	return c.identity.Clone(), nil
}

// PairVerify runs the M1-M4 Pair-Verify ceremony against a previously
// stored identity and installs the resulting session keys on the
// underlying connection.
func (c *HTTPClient) PairVerify(identity *pairing.Identity) error {
	client := pairing.NewVerifyClient(identity)

	m1, err := client.BuildM1()
	if err != nil {
		return asTaxonomy(err)
	}
	m2, err := c.roundTrip("POST", "/pair-verify", m1)
	if err != nil {
		return err
	}
	if err := client.ParseM2(m2); err != nil {
		return asTaxonomy(err)
	}

	m3, err := client.BuildM3()
	if err != nil {
		return asTaxonomy(err)
	}
	m4, err := c.roundTrip("POST", "/pair-verify", m3)
	if err != nil {
		return err
	}
	if err := client.ParseM4(m4); err != nil {
		return asTaxonomy(err)
	}

	c.identity = identity
	c.resumeSessionID = client.SessionID()
	c.resumeSharedSecret = client.SharedSecret()
	c.conn.SetSession(client.ControllerToAccessoryKey, client.AccessoryToControllerKey)
	return nil
}

// ResumeCredentials returns the session ID and shared secret cached from the
// most recent full Pair-Verify (a PairVerify call, or a PairResume that fell
// back to one; a successful resume leaves them unchanged), for a caller that
// wants to persist them and attempt PairResume on its next connection to the
// same accessory. Both are nil until such a Pair-Verify has completed.
func (c *HTTPClient) ResumeCredentials() (sessionID, sharedSecret []byte) {
	return c.resumeSessionID, c.resumeSharedSecret
}

// PairResume attempts the fast two-message Pair-Resume re-handshake using a
// session ID and shared secret cached from a prior PairVerify. If the
// accessory declines to resume, it transparently falls back to completing a
// full Pair-Verify using the same M1/M2 bytes (spec.md §4.3).
func (c *HTTPClient) PairResume(identity *pairing.Identity, sessionID, cachedSharedSecret []byte) error {
	client := pairing.NewResumeClient(identity, sessionID, cachedSharedSecret)

	m1, err := client.BuildM1()
	if err != nil {
		return asTaxonomy(err)
	}
	m2, err := c.roundTrip("POST", "/pair-verify", m1)
	if err != nil {
		return err
	}
	if err := client.ParseM2(m2); err != nil {
		return asTaxonomy(err)
	}

	if client.Resumed {
		c.identity = identity
		c.conn.SetSession(client.ControllerToAccessoryKey, client.AccessoryToControllerKey)
		return nil
	}

	verify := client.Verify()
	m3, err := verify.BuildM3()
	if err != nil {
		return asTaxonomy(err)
	}
	m4, err := c.roundTrip("POST", "/pair-verify", m3)
	if err != nil {
		return err
	}
	if err := verify.ParseM4(m4); err != nil {
		return asTaxonomy(err)
	}

	c.identity = identity
	c.resumeSessionID = verify.SessionID()
	c.resumeSharedSecret = verify.SharedSecret()
	c.conn.SetSession(verify.ControllerToAccessoryKey, verify.AccessoryToControllerKey)
	return nil
}

// GetAccessories fetches and decodes the full attribute database.
func (c *HTTPClient) GetAccessories() (*model.Accessories, error) {
	body, err := c.roundTrip("GET", "/accessories", nil)
	if err != nil {
		return nil, err
	}
	var out model.Accessories
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, asTaxonomy(haperr.Proto("decoding /accessories response", err))
	}
	return &out, nil
}

// GetCharacteristicsOptions requests the extended per-characteristic
// metadata getCharacteristics can optionally return alongside each entry's
// value (spec.md §4.7's "meta"/"perms"/"type"/"ev" query flags).
type GetCharacteristicsOptions struct {
	Meta  bool
	Perms bool
	Type  bool
	Ev    bool
}

func (o GetCharacteristicsOptions) queryString() string {
	var b strings.Builder
	if o.Meta {
		b.WriteString("&meta=1")
	}
	if o.Perms {
		b.WriteString("&perms=1")
	}
	if o.Type {
		b.WriteString("&type=1")
	}
	if o.Ev {
		b.WriteString("&ev=1")
	}
	return b.String()
}

// GetCharacteristics fetches the named aid.iid pairs. ids is the
// already-built comma-separated "id" query string value, e.g. "1.9,1.12".
func (c *HTTPClient) GetCharacteristics(ids string, options GetCharacteristicsOptions) ([]model.Characteristic, error) {
	body, err := c.roundTrip("GET", "/characteristics?id="+ids+options.queryString(), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Characteristics []model.Characteristic `json:"characteristics"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, asTaxonomy(haperr.Proto("decoding /characteristics response", err))
	}
	return out.Characteristics, nil
}

// SetCharacteristics writes (and/or subscribes to) the given entries. A
// plain success (204 No Content) returns a nil slice. A 207 Multi-Status
// response — some characteristics written, others rejected — is decoded
// into one model.CharacteristicReadError per entry (status 0 for the ones
// that succeeded) instead of being collapsed into a single error.
func (c *HTTPClient) SetCharacteristics(writes []model.CharacteristicWrite) ([]model.CharacteristicReadError, error) {
	body, err := json.Marshal(model.CharacteristicWrites{Characteristics: writes})
	if err != nil {
		return nil, asTaxonomy(haperr.Proto("encoding /characteristics request", err))
	}
	status, respBody, err := c.roundTripStatus("PUT", "/characteristics", body)
	if err != nil {
		return nil, err
	}
	if status != 207 || len(respBody) == 0 {
		return nil, nil
	}
	var out struct {
		Characteristics []model.CharacteristicReadError `json:"characteristics"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, asTaxonomy(haperr.Proto("decoding /characteristics 207 response", err))
	}
	return out.Characteristics, nil
}

// AddPairing registers a second controller's long-term public key with the
// accessory.
func (c *HTTPClient) AddPairing(identifier string, ltpk []byte, perm pairing.Permission) error {
	m2, err := c.roundTrip("POST", "/pairings", pairing.BuildAddPairing(identifier, ltpk, perm))
	if err != nil {
		return err
	}
	return asTaxonomy(pairing.ParseSimpleM2(m2))
}

// RemovePairing revokes a controller's pairing.
func (c *HTTPClient) RemovePairing(identifier string) error {
	m2, err := c.roundTrip("POST", "/pairings", pairing.BuildRemovePairing(identifier))
	if err != nil {
		return err
	}
	return asTaxonomy(pairing.ParseSimpleM2(m2))
}

// ListPairings returns every controller currently paired with the
// accessory.
func (c *HTTPClient) ListPairings() ([]pairing.PairingEntry, error) {
	m2, err := c.roundTrip("POST", "/pairings", pairing.BuildListPairings())
	if err != nil {
		return nil, err
	}
	entries, err := pairing.ParseListPairingsM2(m2)
	return entries, asTaxonomy(err)
}

// Identify triggers the unauthenticated identify routine on a never-paired
// accessory (spec.md §4.7).
func (c *HTTPClient) Identify() error {
	_, err := c.roundTrip("POST", "/identify", nil)
	return err
}
