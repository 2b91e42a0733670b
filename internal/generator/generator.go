// Package generator fabricates event log lines, logging signals and metric
// reports for exercising a running eventd.
package generator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/eventd/internal/logtail"
	"github.com/telhawk-systems/eventd/internal/message"
	"github.com/telhawk-systems/eventd/internal/source"
)

// Message is a generated registry message with arguments that fit its
// template.
type Message struct {
	ID     string
	Args   []string
	Origin string
}

// Generator draws random messages from a catalog.
type Generator struct {
	faker   *gofakeit.Faker
	catalog *message.Catalog
	ids     []string
}

// New creates a generator over the messages of the given registry prefixes.
// A zero seed picks a random one.
func New(catalog *message.Catalog, prefixes []string, seed int64) (*Generator, error) {
	if len(prefixes) == 0 {
		prefixes = catalog.Prefixes()
	}
	var ids []string
	for _, p := range prefixes {
		ids = append(ids, catalog.IDs(p)...)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no messages for prefixes %v", prefixes)
	}
	return &Generator{faker: gofakeit.New(seed), catalog: catalog, ids: ids}, nil
}

// Message picks a message and fills its arguments.
func (g *Generator) Message() Message {
	id := g.ids[g.faker.Number(0, len(g.ids)-1)]
	parsed, _ := message.ParseID(id) //nolint:errcheck // ids come from the catalog
	entry, _ := g.catalog.Lookup(parsed.Registry, parsed.Key)

	args := make([]string, entry.Args)
	for i := range args {
		args[i] = g.arg()
	}
	return Message{ID: id, Args: args, Origin: g.origin()}
}

// arg returns a value that reads like a component name or reading. Commas
// would split the argument list, so none are produced.
func (g *Generator) arg() string {
	switch g.faker.Number(0, 2) {
	case 0:
		return g.faker.RandomString([]string{"Fan", "PSU", "CPU", "DIMM", "NIC"}) + strconv.Itoa(g.faker.Number(0, 7))
	case 1:
		return strconv.FormatFloat(g.faker.Float64Range(0, 120), 'f', 1, 64)
	default:
		return strings.ReplaceAll(g.faker.Word(), ",", "")
	}
}

func (g *Generator) origin() string {
	return g.faker.RandomString([]string{
		"/redfish/v1/Systems/system",
		"/redfish/v1/Chassis/chassis",
		"/redfish/v1/Managers/bmc",
	})
}

// LogLine renders m as one event log line stamped ts.
func LogLine(ts time.Time, m Message) string {
	fields := append([]string{m.ID}, m.Args...)
	return ts.UTC().Format(logtail.TimestampLayout) + ".000000+00:00 " + strings.Join(fields, ",")
}

// Signal renders m as a logging entry property-change payload.
func Signal(m Message) ([]byte, error) {
	data := []string{"REDFISH_MESSAGE_ID=" + m.ID}
	if len(m.Args) > 0 {
		data = append(data, "REDFISH_MESSAGE_ARGS="+strings.Join(m.Args, ","))
	}
	if m.Origin != "" {
		data = append(data, "REDFISH_ORIGIN_OF_CONDITION="+m.Origin)
	}
	payload := map[string]any{
		"interface": source.LoggingEntryInterface,
		"properties": map[string]any{
			"AdditionalData": data,
		},
	}
	return json.Marshal(payload)
}

// Report builds a telemetry report payload with n readings.
func (g *Generator) Report(reportID string, n int, ts time.Time) ([]byte, error) {
	type reading struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}
	readings := make([]reading, n)
	for i := range readings {
		readings[i] = reading{
			Name:  fmt.Sprintf("/redfish/v1/Chassis/chassis/Sensors/%s%d#/Reading", g.faker.RandomString([]string{"temp", "power", "fan"}), i),
			Value: g.faker.Float64Range(0, 500),
		}
	}
	return json.Marshal(map[string]any{
		"report_id": reportID,
		"timestamp": ts.UTC().Format(time.RFC3339),
		"readings":  readings,
	})
}
