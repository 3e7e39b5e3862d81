// Package dialog implements multi-turn conversation control: reconciling an
// intent's slot list against extracted entities and session state, and the
// escalation rule set that can short-circuit normal routing.
package dialog

import (
	"github.com/nextmove-ai/convocore/internal/engine/model"
	"github.com/nextmove-ai/convocore/internal/engine/nlu"
)

// slotSpec maps a slot name to the entity keys that can fill it. Primary
// sources are explicit mentions and override values remembered from prior
// turns; generic sources (an unplaced city) only fill slots that are still
// empty after primary entities and pending slots are applied.
type slotSpec struct {
	primary []string
	generic []string
}

var slotSpecs = map[string]slotSpec{
	"tracking_code":  {primary: []string{nlu.EntityTrackingCode}},
	"invoice_number": {primary: []string{nlu.EntityInvoiceNumber}},
	"origin":         {primary: []string{nlu.EntityOrigin}, generic: []string{nlu.EntityCity}},
	"destination":    {primary: []string{nlu.EntityDestination}, generic: []string{nlu.EntityCity}},
	"weight_kg":      {primary: []string{nlu.EntityWeightKg}},
	"volume_m3":      {primary: []string{nlu.EntityVolumeM3}},
	"transport_mode": {primary: []string{nlu.EntityTransportMode}},
	"channel":        {primary: []string{nlu.EntityChannel}},
}

// FillResult is the outcome of one slot-filling pass.
type FillResult struct {
	// Slots holds every filled slot, required and optional.
	Slots map[string]string
	// Missing lists the required slots still empty, in declaration order.
	// The orchestrator asks for at most the first one per turn.
	Missing []string
}

// Complete reports whether every required slot is filled.
func (r FillResult) Complete() bool {
	return len(r.Missing) == 0
}

// Fill reconciles the intent's slot lists against this turn's entities and
// the session's pending slots. Priority per slot: explicit entity, then
// pending value from a prior turn, then a generic entity (awaited slot
// first). Each entity fills at most one slot.
func Fill(intent *nlu.IntentDef, ents model.EntitySet, sess *model.Session) FillResult {
	res := FillResult{Slots: map[string]string{}}
	if intent == nil {
		return res
	}

	all := make([]string, 0, len(intent.Required)+len(intent.Optional))
	all = append(all, intent.Required...)
	all = append(all, intent.Optional...)

	consumed := map[string]bool{}
	take := func(slot string, sources []string) bool {
		for _, src := range sources {
			ent, ok := ents[src]
			if !ok || consumed[src] || ent.Normalized == "" {
				continue
			}
			res.Slots[slot] = ent.Normalized
			consumed[src] = true
			return true
		}
		return false
	}

	for _, slot := range all {
		if take(slot, slotSpecs[slot].primary) {
			continue
		}
		if v, ok := sess.PendingSlots[slot]; ok && v != "" {
			res.Slots[slot] = v
		}
	}

	// Generic entities go to the slot asked about last turn first, then to
	// the remaining empty slots in declaration order.
	ordered := all
	if sess.AwaitingSlot != "" {
		ordered = append([]string{sess.AwaitingSlot}, all...)
	}
	for _, slot := range ordered {
		spec, ok := slotSpecs[slot]
		if !ok || res.Slots[slot] != "" {
			continue
		}
		take(slot, spec.generic)
	}

	for _, slot := range intent.Required {
		if res.Slots[slot] == "" {
			res.Missing = append(res.Missing, slot)
		}
	}
	return res
}
