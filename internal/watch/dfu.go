package watch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chaz8081/watchlink/internal/archive"
	"github.com/chaz8081/watchlink/internal/ble/protocol"
	"github.com/chaz8081/watchlink/internal/progress"
)

// Progress messages emitted by a firmware upgrade, in order.
const (
	MsgExtracting        = "Extracting firmware files..."
	MsgInitiating        = "Initiating firmware upgrade..."
	MsgSendingInitPacket = "Sending DFU init packet..."
	MsgConfiguring       = "Configuring receipt interval..."
	MsgSendingFirmware   = "Sending firmware..."
	MsgWaitingReceipt    = "Waiting for firmware receipt..."
	MsgWaitingValidation = "Waiting for firmware validation..."
	MsgDone              = "Done!"
)

// UpgradeFirmwareArchive extracts the image and init packet from a DFU zip
// and flashes them. See UpgradeFirmware.
func (s *Session) UpgradeFirmwareArchive(ctx context.Context, dfuArchive []byte, p *progress.Sender) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("dfu: %w", err)
	}
	defer release()
	defer s.beginUpgrade()()

	p.Message(MsgExtracting)
	image, initPacket, err := extractFirmware(dfuArchive)
	if err != nil {
		return fmt.Errorf("dfu: %w", err)
	}
	return s.upgradeFirmware(ctx, image, initPacket, p)
}

func extractFirmware(dfuArchive []byte) (image, initPacket []byte, err error) {
	a, err := archive.Open(dfuArchive)
	if err != nil {
		return nil, nil, err
	}
	files, err := a.DFUFiles()
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("[DFU] firmware files", "bin", files.BinFile, "dat", files.DatFile)
	if initPacket, err = a.ReadEntry(files.DatFile, archive.MaxInitPacketSize); err != nil {
		return nil, nil, err
	}
	if image, err = a.ReadEntry(files.BinFile, archive.MaxFirmwareSize); err != nil {
		return nil, nil, err
	}
	return image, initPacket, nil
}

// UpgradeFirmware runs the legacy Nordic DFU handshake: image size, init
// packet, firmware in receipt-checked packets, validation and activation.
// The watch reboots into the new firmware on success. Any unexpected
// notification aborts the upgrade; nothing is retried.
func (s *Session) UpgradeFirmware(ctx context.Context, image, initPacket []byte, p *progress.Sender) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("dfu: %w", err)
	}
	defer release()
	defer s.beginUpgrade()()

	return s.upgradeFirmware(ctx, image, initPacket, p)
}

func (s *Session) upgradeFirmware(ctx context.Context, image, initPacket []byte, p *progress.Sender) error {
	if uint64(len(image)) >= archive.MaxFirmwareSize {
		return fmt.Errorf("dfu: %w", &archive.SizeLimitError{Name: "firmware image", Size: uint64(len(image)), Limit: archive.MaxFirmwareSize})
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dfu: %w", err)
	}

	d := &dfuRun{session: s, ctx: ctx}
	var err error
	if d.control, err = s.subscribe(s.dfuControl); err != nil {
		return fmt.Errorf("dfu: %w", err)
	}
	defer d.control.Close()

	if err := d.run(image, initPacket, p); err != nil {
		return fmt.Errorf("dfu: %w", err)
	}
	return nil
}

// dfuRun is the state of one upgrade attempt.
type dfuRun struct {
	session *Session
	ctx     context.Context
	control *stream
}

func (d *dfuRun) writeControl(msg []byte) error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	if d.session.isDisconnected() {
		return ErrDisconnected
	}
	if err := d.session.dfuControl.Write(msg); err != nil {
		return fmt.Errorf("write control point % x: %w", msg, err)
	}
	return nil
}

func (d *dfuRun) writePacket(data []byte) error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	if d.session.isDisconnected() {
		return ErrDisconnected
	}
	if err := d.session.dfuPacket.Write(data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// expect waits for the acknowledgement of op.
func (d *dfuRun) expect(op byte) error {
	receipt, err := d.control.await(d.ctx)
	if err != nil {
		return fmt.Errorf("await receipt for step 0x%02x: %w", op, err)
	}
	if !protocol.IsDFUResponse(receipt, op) {
		return &ReceiptError{Step: op, Got: receipt, Want: protocol.DFUResponse(op)}
	}
	slog.Debug("[DFU] receipt", "step", op)
	return nil
}

// expectPacketReceipt waits for a packet receipt and checks its byte count.
func (d *dfuRun) expectPacketReceipt(sent uint32) error {
	receipt, err := d.control.await(d.ctx)
	if err != nil {
		return fmt.Errorf("await packet receipt: %w", err)
	}
	if len(receipt) == 0 || receipt[0] != protocol.DFUOpPacketReceipt {
		return &ReceiptError{Step: protocol.DFUOpReceiveImage, Got: receipt}
	}
	received, err := protocol.ParsePacketReceipt(receipt)
	if err != nil {
		return err
	}
	if received != sent {
		return &ByteCountMismatchError{Sent: sent, Received: received}
	}
	return nil
}

func (d *dfuRun) run(image, initPacket []byte, p *progress.Sender) error {
	opts := d.session.opts
	total := uint32(len(image))

	p.Message(MsgInitiating)
	slog.Info("[DFU] starting upgrade", "image_size", total, "init_packet_size", len(initPacket))
	if err := d.writeControl(protocol.DFUStartMessage); err != nil {
		return err
	}
	if err := d.writePacket(protocol.DFUImageSizePacket(total)); err != nil {
		return err
	}
	if err := d.expect(protocol.DFUOpStart); err != nil {
		return err
	}

	p.Message(MsgSendingInitPacket)
	if err := d.writeControl(protocol.DFUInitBeginMessage); err != nil {
		return err
	}
	if err := d.writePacket(initPacket); err != nil {
		return err
	}
	if err := d.writeControl(protocol.DFUInitCompleteMessage); err != nil {
		return err
	}
	if err := d.expect(protocol.DFUOpInitParams); err != nil {
		return err
	}

	p.Message(MsgConfiguring)
	if err := d.writeControl(protocol.DFUReceiptIntervalMessage(opts.ReceiptInterval)); err != nil {
		return err
	}
	if err := d.writeControl(protocol.DFUReceiveImageMessage); err != nil {
		return err
	}

	p.Message(MsgSendingFirmware)
	var sent uint32
	for i, packet := range protocol.ChunkBytes(image, opts.PacketSize) {
		if err := d.writePacket(packet); err != nil {
			return err
		}
		sent += uint32(len(packet))
		if (i+1)%int(opts.ReceiptInterval) == 0 {
			if err := d.expectPacketReceipt(sent); err != nil {
				return err
			}
			slog.Debug("[DFU] packet receipt", "sent", sent, "total", total)
			p.Numbers(sent, total)
		}
	}

	p.Message(MsgWaitingReceipt)
	if err := d.expect(protocol.DFUOpReceiveImage); err != nil {
		return err
	}
	if err := d.writeControl(protocol.DFUValidateMessage); err != nil {
		return err
	}

	p.Message(MsgWaitingValidation)
	if err := d.expect(protocol.DFUOpValidate); err != nil {
		return err
	}
	if err := d.writeControl(protocol.DFUActivateResetMessage); err != nil {
		return err
	}

	slog.Info("[DFU] firmware activated", "bytes", sent)
	p.Message(MsgDone)
	return nil
}
