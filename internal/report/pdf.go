package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/radio"
)

// SaveSessionPDF renders snap into a PDF file at out.
func SaveSessionPDF(snap radio.Snapshot, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := WriteSessionPDF(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteSessionPDF renders snap as a session report: the session summary,
// stream counters and one table per object kind. The snapshot digest is
// printed and embedded as a QR code.
func WriteSessionPDF(w io.Writer, snap radio.Snapshot) error {
	digest, err := common.DigestJSON(snap)
	if err != nil {
		return fmt.Errorf("digest snapshot: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Radio Session Report", false)
	pdf.SetAuthor("sdrctl", false)
	pdf.SetCreator("sdrctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Radio Session Report")
	addDigest(pdf, digest)
	addSummarySection(pdf, snap)
	addCountersSection(pdf, snap.Metrics)

	addTable(pdf, "Panadapters",
		[]string{"ID", "Center MHz", "Span MHz", "Pixels", "Waterfall", "Ready"},
		[]float64{30, 30, 30, 25, 30, 20},
		rows(snap.Panadapters, func(p radio.PanadapterInfo) []string {
			return []string{p.ID.String(), mhz(p.Center), mhz(p.Bandwidth), strconv.Itoa(p.XPixels), idOrDash(uint32(p.Waterfall)), yesNo(p.Ready)}
		}))
	addTable(pdf, "Slices",
		[]string{"ID", "Letter", "Frequency MHz", "Mode", "Panadapter", "Ready"},
		[]float64{20, 20, 40, 25, 40, 20},
		rows(snap.Slices, func(s radio.SliceInfo) []string {
			return []string{s.ID.String(), s.Letter, mhz(s.Frequency), s.Mode, s.Panadapter.String(), yesNo(s.Ready)}
		}))
	addTable(pdf, "Meters",
		[]string{"Number", "Source", "Name", "Unit", "Value", "Range"},
		[]float64{20, 25, 40, 20, 30, 45},
		rows(snap.Meters, func(m radio.MeterInfo) []string {
			return []string{strconv.Itoa(int(m.Number)), m.Source, m.Name, m.Unit.String(),
				strconv.FormatFloat(m.Value, 'f', 2, 64),
				fmt.Sprintf("%g .. %g", m.Low, m.High)}
		}))
	addTable(pdf, "Streams",
		[]string{"ID", "Kind", "Client", "Gain", "Lost", "Ready"},
		[]float64{30, 40, 30, 20, 25, 20},
		rows(snap.Streams, func(s radio.StreamInfo) []string {
			return []string{s.ID.String(), s.Kind, idOrDash(s.ClientHandle), strconv.Itoa(s.Gain),
				strconv.FormatUint(s.LostPackets, 10), yesNo(s.Ready)}
		}))
	addTable(pdf, "Amplifiers and Transverters",
		[]string{"ID", "Kind", "Name", "Detail"},
		[]float64{30, 30, 50, 70},
		accessoryRows(snap))

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.Output(w)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addDigest(pdf *gofpdf.Fpdf, digest string) {
	png, err := DigestToQR(digest, 256)
	if err != nil {
		pdf.SetError(err)
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("digest", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions("digest", pageW-right-30, 15, 30, 30, false, opts, 0, "")

	pdf.SetFont("Courier", "", 7)
	pdf.MultiCell(140, 4, "SHA-256 "+digest, "", "L", false)
	pdf.Ln(4)
}

func addSummarySection(pdf *gofpdf.Fpdf, snap radio.Snapshot) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Session")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Captured", value: snap.Time.Format(time.RFC3339)},
		{label: "Client Handle", value: emptyFallback(snap.ClientHandle, "-")},
		{label: "API Version", value: emptyFallback(snap.APIVersion, "unknown")},
		{label: "Payload Layout", value: emptyFallback(snap.Layout, "-")},
		{label: "Objects", value: strconv.Itoa(len(snap.Panadapters) + len(snap.Waterfalls) + len(snap.Meters) +
			len(snap.Amplifiers) + len(snap.Xvtrs) + len(snap.Slices) + len(snap.Streams))},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addCountersSection(pdf *gofpdf.Fpdf, m common.MetricsSnapshot) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Stream Counters")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	items := []struct {
		label string
		value int64
	}{
		{"Status lines", m.StatusLines},
		{"Datagrams", m.Datagrams},
		{"Frames", m.Frames},
		{"Gaps", m.Gaps},
		{"Stale", m.Stale},
		{"Unsynced", m.Unsynced},
		{"Lost packets", m.LostPackets},
		{"Malformed", m.Malformed},
		{"Unaddressed", m.Unaddressed},
		{"Unknown tokens", m.UnknownTokens},
		{"Dropped", m.Dropped},
	}
	for i, item := range items {
		ln := 0
		if i%2 == 1 {
			ln = 1
		}
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, strconv.FormatInt(item.value, 10), "", ln, "L", false, 0, "")
	}
	pdf.CellFormat(40, 6, "Bytes", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, common.FormatBytes(m.Bytes), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func addTable(pdf *gofpdf.Fpdf, title string, headers []string, widths []float64, body [][]string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)

	if len(body) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "None.", "", "L", false)
		pdf.Ln(2)
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range body {
		renderTableRow(pdf, widths, row, 5)
	}
	pdf.Ln(4)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+float64(maxLines)*lineHeight)
}

func rows[T any](items []T, fn func(T) []string) [][]string {
	out := make([][]string, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return out
}

func accessoryRows(snap radio.Snapshot) [][]string {
	var out [][]string
	for _, a := range snap.Amplifiers {
		out = append(out, []string{a.ID.String(), "amplifier", emptyFallback(a.Model, "-"),
			fmt.Sprintf("%s:%d %s", a.IP, a.Port, a.State)})
	}
	for _, x := range snap.Xvtrs {
		out = append(out, []string{x.ID.String(), "xvtr", x.Name,
			fmt.Sprintf("RF %s MHz, IF %s MHz", mhz(x.RFFreq), mhz(x.IFFreq))})
	}
	return out
}

func mhz(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func idOrDash(id uint32) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprintf("0x%08X", id)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
