package document

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
)

// Letterhead identifies the landlord on every notice.
type Letterhead struct {
	LandlordName    string
	LandlordAddress string
}

// Renderer produces notice and distribution documents.
type Renderer struct {
	Letterhead Letterhead
	// Now stamps the signature date. Defaults to time.Now.
	Now func() time.Time
}

func (r Renderer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func newDoc(orientation, title string, stamp time.Time) *fpdf.Fpdf {
	pdf := fpdf.New(orientation, "pt", "Letter", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("noticerun", true)
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.SetCatalogSort(true)
	pdf.SetMargins(36, 36, 36)
	pdf.SetAutoPageBreak(true, 36)
	return pdf
}

func output(pdf *fpdf.Fpdf, op string) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fault.New(fault.EncryptionOrIO, op, err)
	}
	return buf.Bytes(), nil
}

// Notice renders the two-page N1 notice for one lease.
func (r Renderer) Notice(n domain.Notice) ([]byte, error) {
	effective, err := n.Effective()
	if err != nil {
		return nil, fault.New(fault.MalformedData, "render notice", err)
	}
	now := r.now()

	pdf := newDoc("P", "N1 Notice of Rent Increase", now)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 24, "Notice of Rent Increase (N1)", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(60, 14, "To:", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 14, tr(n.TenantNames), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(60, 14, "Address:", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 14, tr(n.Address), "", 1, "L", false, 0, "")
	if n.Unit != "" {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(60, 14, "Unit:", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 14, tr(n.Unit), "", 1, "L", false, 0, "")
	}
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 15, fmt.Sprintf(
		"This is a notice that your rent will increase to %s per month starting on %s.",
		Money(n.NewRent.StringFixed(2)), effective.Format("02 / 01 / 2006")), "", "L", false)
	pdf.Ln(6)
	pdf.MultiCell(0, 15, fmt.Sprintf(
		"The amount of the increase is %s, which is an increase of %s%%.",
		Money(n.Increase.StringFixed(2)), n.Percentage.String()), "", "L", false)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 16, "Rent Increase Guideline", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	check := func(on bool) string {
		if on {
			return "[X]"
		}
		return "[  ]"
	}
	agi := n.AgiType != domain.AgiNone
	pdf.MultiCell(0, 14, check(!agi)+" The rent increase is not more than the rent increase guideline.", "", "L", false)
	pdf.MultiCell(0, 14, check(agi)+" The rent increase is more than the rent increase guideline because:", "", "L", false)
	pdf.SetX(60)
	pdf.MultiCell(0, 14, check(n.AgiType == domain.AgiApproved)+" the Landlord and Tenant Board has approved an above-guideline increase.", "", "L", false)
	pdf.SetX(60)
	pdf.MultiCell(0, 14, check(n.AgiType == domain.AgiNotApproved)+" the landlord has applied for an above-guideline increase and it has not yet been approved.", "", "L", false)

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 16, "Signature", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 14, "Landlord: "+tr(r.Letterhead.LandlordName), "", 1, "L", false, 0, "")
	if r.Letterhead.LandlordAddress != "" {
		pdf.CellFormat(0, 14, tr(r.Letterhead.LandlordAddress), "", 1, "L", false, 0, "")
	}
	pdf.Ln(20)
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 18, "Date: "+now.Format("02 / 01 / 2006"), "", 1, "L", false, 0, "")

	return output(pdf, "render notice")
}
