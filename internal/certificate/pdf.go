package certificate

import (
	"bytes"
	"fmt"

	"craftchain/internal/model"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

// RenderPDF draws a one page A4 certificate with a QR code that points at
// verifyURL.
func RenderPDF(rec *model.CertificateRecord, meta Metadata, verifyURL string) ([]byte, error) {
	qrPNG, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(rec.IssuedAt)
	pdf.SetModificationDate(rec.IssuedAt)
	pdf.SetTitle(meta.Name, true)
	pdf.SetAuthor(meta.Certificate.Platform, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 12, tr("Certificate of Authenticity"), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, tr(meta.Name), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	rows := []struct{ label, value string }{
		{"Token ID", rec.TokenID},
		{"Payment ID", rec.PaymentID},
		{"Order ID", rec.OrderID},
		{"Network", rec.Network},
		{"Contract", rec.ContractAddress},
		{"Owner", rec.OwnerAddress},
		{"Transaction", rec.TransactionHash},
		{"Issued", rec.IssuedAt.UTC().Format("2006-01-02 15:04 MST")},
	}
	for _, a := range meta.Attributes {
		if a.TraitType == "Payment ID" {
			continue
		}
		rows = append(rows, struct{ label, value string }{a.TraitType, a.Value})
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, tr(row.label), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, tr(row.value), "", 1, "L", false, 0, "")
	}

	imageOpts := gofpdf.ImageOptions{
		ImageType: "PNG",
	}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 200, 45, 45, false, imageOpts, 0, "")

	pdf.SetXY(10, 250)
	pdf.SetFont("Arial", "I", 9)
	pdf.MultiCell(0, 5, tr("Scan the code or visit "+verifyURL+" to verify this certificate."), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
