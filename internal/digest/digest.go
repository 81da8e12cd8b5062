// Package digest computes content-addressed fingerprints of run bundles.
//
// Two runs of the same bench and plan on a deterministic backend produce
// the same bundle digest. The run id is excluded; everything a reader of
// the bundle can observe is included.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// DomainBundle prefixes bundle digests. The version suffix allows a later
// change of the canonical form.
const DomainBundle = "observer/bundle/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The separator keeps domain and data from running into each other.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonical field order is fixed by the struct layout. Floats are rendered
// with strconv 'g' and shortest precision so NaN and infinities encode too.
type canonicalBundle struct {
	State    string            `json:"state"`
	Duration string            `json:"duration"`
	Reached  string            `json:"reached"`
	Logbook  []canonicalEntry  `json:"logbook"`
	Series   []canonicalSeries `json:"series"`
}

type canonicalEntry struct {
	Seq      int64  `json:"seq"`
	What     string `json:"what"`
	Severity string `json:"severity"`
	Data     string `json:"data"`
}

type canonicalSeries struct {
	Target  string      `json:"target"`
	Signal  string      `json:"signal"`
	Samples [][2]string `json:"samples"`
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// MarshalCanonical renders the observable content of res: final state,
// duration, reached time, the logbook and every series sorted by key.
func MarshalCanonical(res *engine.Result) ([]byte, error) {
	if res == nil {
		return nil, fmt.Errorf("MarshalCanonical: nil result")
	}
	cb := canonicalBundle{
		State:    string(res.State),
		Duration: num(res.Duration),
		Reached:  num(res.Reached),
		Logbook:  make([]canonicalEntry, len(res.Logbook)),
		Series:   make([]canonicalSeries, 0, len(res.Timeseries)),
	}
	for i, e := range res.Logbook {
		cb.Logbook[i] = canonicalEntry{Seq: e.Seq, What: e.What, Severity: string(e.Severity), Data: e.Data}
	}
	for _, k := range timeseries.Keys(res.Timeseries) {
		s := res.Timeseries[k]
		cs := canonicalSeries{Target: k.Target, Signal: k.Signal, Samples: make([][2]string, len(s))}
		for i, smp := range s {
			cs.Samples[i] = [2]string{num(smp.Time), num(smp.Value)}
		}
		cb.Series = append(cb.Series, cs)
	}
	return json.Marshal(cb)
}

// Bundle returns the hex SHA-256 digest of res's canonical form.
func Bundle(res *engine.Result) (string, error) {
	canonical, err := MarshalCanonical(res)
	if err != nil {
		return "", fmt.Errorf("Bundle: %w", err)
	}
	return hashWithDomain(DomainBundle, canonical), nil
}

// MustBundle is like Bundle but panics on error.
// Use only in tests or when res is known to be non-nil.
func MustBundle(res *engine.Result) string {
	d, err := Bundle(res)
	if err != nil {
		panic(err)
	}
	return d
}
