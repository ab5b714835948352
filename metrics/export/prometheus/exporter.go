package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Exporter renders a metrics source on demand.
type Exporter struct {
	source internaldefs.Source
}

// New returns an exporter reading from source, usually an *authcore.Engine.
func New(source internaldefs.Source) *Exporter {
	return &Exporter{source: source}
}

func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current exposition. It is empty while metrics are
// disabled and nothing was dropped.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	drops := internaldefs.DropSamples(p.source)

	var dropped uint64
	for _, s := range drops {
		dropped += s.Value
	}
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.Counters {
		writeCounter(&b, def, snapshot.Counters[def.ID])
	}

	def := internaldefs.ValidateLatency
	writeHistogram(&b, def, internaldefs.Cumulative(snapshot.Histograms[def.ID]))

	for _, s := range drops {
		writeCounter(&b, s.Def, s.Value)
	}

	return b.String()
}

func writeHeader(b *strings.Builder, def internaldefs.Def, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(def.Name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(def.Help))
	b.WriteString("\n# TYPE ")
	b.WriteString(def.Name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name string, value uint64) {
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeCounter(b *strings.Builder, def internaldefs.Def, value uint64) {
	writeHeader(b, def, "counter")
	writeSample(b, def.Name, value)
}

func writeHistogram(b *strings.Builder, def internaldefs.Def, cumulative [8]uint64) {
	writeHeader(b, def, "histogram")

	for i, bucket := range internaldefs.Buckets {
		writeSample(b, def.Name+`_bucket{le="`+bucket.LE+`"}`, cumulative[i])
	}
	writeSample(b, def.Name+"_count", cumulative[len(cumulative)-1])

	// Snapshots carry no sum.
	writeSample(b, def.Name+"_sum", 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}
