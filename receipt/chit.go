// Package receipt renders printable documents for orders.
package receipt

import (
	"bytes"
	"fmt"
	"time"

	"clubpos/cart"
	"clubpos/models"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

// QRPayload is what the chit's QR code encodes; scanning it opens the order.
func QRPayload(orderID string) string {
	return "clubpos:order:" + orderID
}

// FormatMoney renders minor units with two decimals.
func FormatMoney(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Chit renders the kitchen chit of an order as an 80mm wide PDF.
func Chit(order models.Order, items []models.OrderItem, products cart.Catalog, tableName string) ([]byte, error) {
	qrPNG, err := qrcode.Encode(QRPayload(order.OrderID), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("receipt: qr code: %w", err)
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: 80, Ht: 200},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.AddPage()

	pdf.SetFont("Courier", "B", 14)
	pdf.CellFormat(0, 7, "KITCHEN ORDER", "", 1, "C", false, 0, "")

	pdf.SetFont("Courier", "", 9)
	where := "Takeaway"
	if order.TableID != nil {
		where = "Table " + tableName
	}
	pdf.CellFormat(0, 5, where, "", 1, "L", false, 0, "")
	if order.CustomerName != "" {
		pdf.CellFormat(0, 5, "Customer: "+order.CustomerName, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 5, "Order: "+order.OrderID, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, order.CreatedAt.Format(time.DateTime), "", 1, "L", false, 0, "")
	if order.Priority != "" {
		pdf.CellFormat(0, 5, "Priority: "+order.Priority, "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	for _, it := range items {
		pdf.SetFont("Courier", "B", 10)
		pdf.CellFormat(52, 5, fmt.Sprintf("%dx %s", it.Quantity, products.Name(it.ProductID)), "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 9)
		pdf.CellFormat(0, 5, string(it.Status), "", 1, "R", false, 0, "")
		if it.Notes != nil && *it.Notes != "" {
			pdf.SetFont("Courier", "I", 8)
			pdf.MultiCell(0, 4, "  "+*it.Notes, "", "L", false)
		}
	}

	pdf.Ln(2)
	pdf.SetFont("Courier", "B", 10)
	pdf.CellFormat(0, 6, "Total "+FormatMoney(order.Total), "T", 1, "R", false, 0, "")

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 25, pdf.GetY()+4, 30, 30, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("receipt: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
