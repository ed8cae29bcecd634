package leave

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
)

// QRSize is the side, in pixels, of gate pass QR codes.
const QRSize = 256

// QRCode renders the gate pass ID as a PNG QR code, the form guards scan at the gate.
func (gp GatePass) QRCode() ([]byte, error) {
	png, err := qrcode.Encode(gp.ID, qrcode.Medium, QRSize)
	return png, pkgerrors.Wrapf(err, "encoding gate pass %s", gp.ID)
}

// GatePassQR returns the gate pass of a leave and its QR code.
func (svc *Service) GatePassQR(ctx context.Context, leaveID string) (GatePass, []byte, error) {
	gp, err := svc.Repo.GetLeaveGatePass(ctx, leaveID)
	if err != nil {
		return GatePass{}, nil, err
	}
	png, err := gp.QRCode()
	if err != nil {
		return GatePass{}, nil, err
	}
	return gp, png, nil
}
