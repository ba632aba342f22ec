package x11

import (
	"errors"
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"go.klb.dev/clipbridge/internal/bridge"
)

// Core protocol error codes.
const (
	codeRequest        = 1
	codeValue          = 2
	codeWindow         = 3
	codePixmap         = 4
	codeAtom           = 5
	codeMatch          = 8
	codeDrawable       = 9
	codeAccess         = 10
	codeAlloc          = 11
	codeIDChoice       = 14
	codeName           = 15
	codeLength         = 16
	codeImplementation = 17
)

// protocolFault decodes an X error into the detail the fault log needs.
func protocolFault(e xgb.Error) bridge.ProtocolFault {
	f := bridge.ProtocolFault{
		Message:    e.Error(),
		Serial:     e.SequenceId(),
		ResourceID: e.BadId(),
	}
	switch v := e.(type) {
	case xproto.ValueError:
		fromValue(&f, codeValue, v)
	case xproto.WindowError:
		fromValue(&f, codeWindow, xproto.ValueError(v))
	case xproto.PixmapError:
		fromValue(&f, codePixmap, xproto.ValueError(v))
	case xproto.AtomError:
		fromValue(&f, codeAtom, xproto.ValueError(v))
	case xproto.DrawableError:
		fromValue(&f, codeDrawable, xproto.ValueError(v))
	case xproto.IDChoiceError:
		fromValue(&f, codeIDChoice, xproto.ValueError(v))
	case xproto.RequestError:
		fromRequest(&f, codeRequest, v)
	case xproto.MatchError:
		fromRequest(&f, codeMatch, xproto.RequestError(v))
	case xproto.AccessError:
		fromRequest(&f, codeAccess, xproto.RequestError(v))
	case xproto.AllocError:
		fromRequest(&f, codeAlloc, xproto.RequestError(v))
	case xproto.NameError:
		fromRequest(&f, codeName, xproto.RequestError(v))
	case xproto.LengthError:
		fromRequest(&f, codeLength, xproto.RequestError(v))
	case xproto.ImplementationError:
		fromRequest(&f, codeImplementation, xproto.RequestError(v))
	}
	return f
}

func fromValue(f *bridge.ProtocolFault, code uint8, v xproto.ValueError) {
	f.Code = code
	f.Message = v.NiceName
	f.RequestCode = v.MajorOpcode
	f.MinorCode = v.MinorOpcode
}

func fromRequest(f *bridge.ProtocolFault, code uint8, v xproto.RequestError) {
	f.Code = code
	f.Message = v.NiceName
	f.RequestCode = v.MajorOpcode
	f.MinorCode = v.MinorOpcode
}

// claimError maps the result of SetSelectionOwner onto the bridge's
// ownership errors. ok is false for errors that are not X protocol errors,
// i.e. the connection itself failed.
func claimError(err error) (mapped error, ok bool) {
	switch err.(type) {
	case nil:
		return nil, true
	case xproto.AtomError:
		return fmt.Errorf("%w: %v", bridge.ErrInvalidTarget, err), true
	case xproto.WindowError:
		return fmt.Errorf("%w: %v", bridge.ErrInvalidWindow, err), true
	}
	var xerr xgb.Error
	if errors.As(err, &xerr) {
		return err, true
	}
	return err, false
}
