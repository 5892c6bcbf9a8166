// ABOUTME: QR code rendering for entry deep links
// ABOUTME: Produces 200px PNGs with medium error correction in the log's error red

package links

import (
	"fmt"
	"image/color"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	// QRSize is the rendered width and height in pixels.
	QRSize = 200
)

var (
	qrForeground = color.RGBA{R: 0xc6, G: 0x28, B: 0x28, A: 0xff} // #c62828
	qrBackground = color.White
)

// QRCode renders content as a PNG QR code.
func QRCode(content string) ([]byte, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encoding qr code: %w", err)
	}
	q.ForegroundColor = qrForeground
	q.BackgroundColor = qrBackground

	png, err := q.PNG(QRSize)
	if err != nil {
		return nil, fmt.Errorf("rendering qr code: %w", err)
	}
	return png, nil
}
