// Package discovery decodes HAP's "_hap._tcp" mDNS TXT records. It performs
// no network I/O of its own — browsing for the service is explicitly out of
// scope (spec.md §1 Non-goals) — callers run their own zeroconf browser and
// hand the resolved record to ParseTXT.
package discovery

import (
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"github.com/go-hap/controller/format"
	"github.com/go-hap/controller/haperr"
)

// StatusFlag is the "sf" TXT key: a bitmask of the accessory's current
// setup/pairing status.
type StatusFlag uint

const (
	StatusNotPaired StatusFlag = 1 << iota
	StatusNotConfiguredForWiFi
	StatusProblemDetected
)

// Advertisement is the decoded set of "_hap._tcp" TXT fields, spec.md §6.
type Advertisement struct {
	ConfigNumber      uint64          // "c#": current configuration number
	FeatureFlags      uint            // "ff": pairing feature flags
	ID                string          // "id": accessory's pairing ID, colon-hex MAC-shaped
	Name              string          // "md": model/name
	ProtocolVersion   string          // "pv": HAP protocol version, defaults to "1.0"
	StateNumber       uint64          // "s#": current state number, monotonically increasing
	StatusFlags       StatusFlag      // "sf"
	Category          format.Category // "ci": accessory category
}

// ParseTXT decodes rr's strings into an Advertisement. Unknown keys are
// ignored; missing mandatory keys ("c#", "id", "s#", "ci") are reported as
// an InvalidInput error.
func ParseTXT(rr *dns.TXT) (Advertisement, error) {
	fields := make(map[string]string, len(rr.Txt))
	for _, pair := range rr.Txt {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		fields[key] = value
	}

	var adv Advertisement
	adv.ProtocolVersion = "1.0"

	id, ok := fields["id"]
	if !ok {
		return Advertisement{}, haperr.Invalid(`TXT record missing mandatory "id" key`, nil)
	}
	adv.ID = id

	cNum, ok := fields["c#"]
	if !ok {
		return Advertisement{}, haperr.Invalid(`TXT record missing mandatory "c#" key`, nil)
	}
	n, err := strconv.ParseUint(cNum, 10, 64)
	if err != nil {
		return Advertisement{}, haperr.Invalid(`TXT record "c#" is not a number`, err)
	}
	adv.ConfigNumber = n

	sNum, ok := fields["s#"]
	if !ok {
		return Advertisement{}, haperr.Invalid(`TXT record missing mandatory "s#" key`, nil)
	}
	n, err = strconv.ParseUint(sNum, 10, 64)
	if err != nil {
		return Advertisement{}, haperr.Invalid(`TXT record "s#" is not a number`, err)
	}
	adv.StateNumber = n

	ci, ok := fields["ci"]
	if !ok {
		return Advertisement{}, haperr.Invalid(`TXT record missing mandatory "ci" key`, nil)
	}
	ciNum, err := strconv.ParseUint(ci, 10, 8)
	if err != nil {
		return Advertisement{}, haperr.Invalid(`TXT record "ci" is not a number`, err)
	}
	adv.Category = format.Category(ciNum)

	if ff, ok := fields["ff"]; ok {
		n, err := strconv.ParseUint(ff, 10, 32)
		if err != nil {
			return Advertisement{}, haperr.Invalid(`TXT record "ff" is not a number`, err)
		}
		adv.FeatureFlags = uint(n)
	}

	if md, ok := fields["md"]; ok {
		adv.Name = md
	}

	if pv, ok := fields["pv"]; ok {
		adv.ProtocolVersion = pv
	}

	if sf, ok := fields["sf"]; ok {
		n, err := strconv.ParseUint(sf, 10, 32)
		if err != nil {
			return Advertisement{}, haperr.Invalid(`TXT record "sf" is not a number`, err)
		}
		adv.StatusFlags = StatusFlag(n)
	}

	return adv, nil
}

// Paired reports whether the advertised accessory is already claimed by a
// controller.
func (a Advertisement) Paired() bool {
	return a.StatusFlags&StatusNotPaired == 0
}
