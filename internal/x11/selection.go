package x11

import (
	"fmt"
	"log/slog"

	"github.com/jezek/xgb/xproto"
)

// answer replies to a SelectionRequest for one of our selections. TARGETS
// lists the text targets; text targets are served from the native clipboard.
// Anything else is refused with property None.
func (c *Conn) answer(req xproto.SelectionRequestEvent, unicode bool) {
	property := req.Property
	if property == xproto.AtomNone {
		// Obsolete requestors.
		property = req.Target
	}

	targets, utf8 := c.atoms[atomTargets], c.atoms[atomUTF8String]
	switch {
	case targets != 0 && req.Target == targets:
		offered := textTargets(unicode, utf8)
		payload := atomList(append([]xproto.Atom{targets}, offered...)...)
		xproto.ChangeProperty(c.xc, xproto.PropModeReplace, req.Requestor, property, xproto.AtomAtom,
			32, uint32(len(payload)/4), payload)
	case servesText(req.Target, unicode, utf8):
		text, ok := c.nativeText()
		if !ok {
			property = xproto.AtomNone
			break
		}
		xproto.ChangeProperty(c.xc, xproto.PropModeReplace, req.Requestor, property, req.Target,
			8, uint32(len(text)), text)
	default:
		property = xproto.AtomNone
	}

	notify := xproto.SelectionNotifyEvent{
		Time:      req.Time,
		Requestor: req.Requestor,
		Selection: req.Selection,
		Target:    req.Target,
		Property:  property,
	}
	xproto.SendEvent(c.xc, false, req.Requestor, xproto.EventMaskNoEvent, string(notify.Bytes()))

	slog.Debug("answered selection request",
		"requestor", fmt.Sprintf("0x%x", req.Requestor),
		"target", req.Target,
		"refused", property == xproto.AtomNone)
}

func (c *Conn) nativeText() ([]byte, bool) {
	if c.text == nil {
		return nil, false
	}
	return c.text.Text()
}

// textTargets lists the text targets offered, preferred first.
func textTargets(unicode bool, utf8 xproto.Atom) []xproto.Atom {
	if unicode {
		return []xproto.Atom{utf8, xproto.AtomString}
	}
	return []xproto.Atom{xproto.AtomString}
}

// servesText reports whether target is one of the offered text targets.
func servesText(target xproto.Atom, unicode bool, utf8 xproto.Atom) bool {
	for _, t := range textTargets(unicode, utf8) {
		if t != 0 && t == target {
			return true
		}
	}
	return false
}
