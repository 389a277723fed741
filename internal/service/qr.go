package service

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

// QRPresenter writes pairing codes to the process output: a log line for
// collectors and a terminal QR code for whoever watches the console.
type QRPresenter struct {
	logger *logrus.Logger
	out    io.Writer
}

// NewQRPresenter renders to out, or stdout when out is nil
func NewQRPresenter(logger *logrus.Logger, out io.Writer) *QRPresenter {
	if out == nil {
		out = os.Stdout
	}
	return &QRPresenter{logger: logger, out: out}
}

// Present logs the code and draws it as a QR code
func (p *QRPresenter) Present(code string) {
	p.logger.WithField("auth_code", code).Warn("Authentication required, scan the QR code with the phone")

	rendered, err := RenderQR(code)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to render QR code")
		return
	}
	if _, err := fmt.Fprintln(p.out, rendered); err != nil {
		p.logger.WithError(err).Debug("Failed to write QR code")
	}
}

// RenderQR draws code as a block-character QR code
func RenderQR(code string) (string, error) {
	q, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return q.ToString(false), nil
}
