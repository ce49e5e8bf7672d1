// Package carddav synthesizes the virtual birthday calendar (spec.md §3,
// "derived from an Address Book's BDAY/ANNIVERSARY fields, with no
// materialized storage of its own") from the contacts stored in an address
// book. Nothing here is persisted; BirthdayObjects recomputes the synthetic
// VEVENTs on every call from the address book's live contacts.
package carddav

import (
	"bytes"
	"context"
	"fmt"
	"time"

	goical "github.com/emersion/go-ical"
	govcard "github.com/emersion/go-vcard"

	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/store"
	"github.com/hearthdav/caldavd/pkg/vcard"
)

// BirthdayObjects lists ab's contacts, extracts BDAY/ANNIVERSARY fields with
// pkg/vcard, and returns one synthetic yearly all-day VEVENT per date found.
// The synthetic CalendarObject ids (model.BirthdayObjectID /
// AnniversaryObjectID) are deterministic so a client's ETag-based caching
// still works across repeated PROPFINDs.
func BirthdayObjects(ctx context.Context, s store.Store, ab *model.AddressBook) ([]*model.CalendarObject, error) {
	key := ab.OwnerPrincipal + "/" + ab.ID
	contacts, err := s.ListAddressObjects(ctx, key)
	if err != nil {
		return nil, err
	}

	var out []*model.CalendarObject
	for _, c := range contacts {
		cards, err := govcard.NewDecoder(bytes.NewReader(c.Data)).Decode()
		if err != nil {
			continue
		}
		fn := cards.Value(govcard.FieldFormattedName)

		if bday, ok := vcard.BirthdayOf(cards); ok {
			obj, err := synthesizeEvent(model.BirthdayObjectID(c.ID), fmt.Sprintf("%s's Birthday", fn), bday)
			if err == nil {
				out = append(out, obj)
			}
		}
		if anniv, ok := vcard.AnniversaryOf(cards); ok {
			obj, err := synthesizeEvent(model.AnniversaryObjectID(c.ID), fmt.Sprintf("%s's Anniversary", fn), anniv)
			if err == nil {
				out = append(out, obj)
			}
		}
	}
	return out, nil
}

// synthesizeEvent builds a yearly-recurring all-day VEVENT for a significant
// date. When the source date carries no year (govcard "--MMDD" form), the
// event still needs a concrete DTSTART year to be valid iCalendar; the
// placeholder year pkg/vcard attaches is used and RRULE;FREQ=YEARLY makes it
// recur regardless.
func synthesizeEvent(id, summary string, d vcard.SignificantDate) (*model.CalendarObject, error) {
	start := d.Date
	end := start.AddDate(0, 0, 1)

	cal := &goical.Calendar{
		Component: &goical.Component{
			Name: goical.CompCalendar,
			Props: goical.Props{
				goical.PropVersion:   []goical.Prop{{Name: goical.PropVersion, Value: "2.0"}},
				goical.PropProductID: []goical.Prop{{Name: goical.PropProductID, Value: "-//hearthdav//caldavd//EN"}},
			},
		},
	}

	event := &goical.Component{Name: goical.CompEvent, Props: make(goical.Props)}
	event.Props.Set(&goical.Prop{Name: goical.PropUID, Value: id})
	event.Props.Set(&goical.Prop{Name: goical.PropDateTimeStamp, Value: start.UTC().Format("20060102T150405Z")})
	event.Props.Set(&goical.Prop{Name: goical.PropSummary, Value: summary})

	dtstart := goical.NewProp(goical.PropDateTimeStart)
	dtstart.Params.Set(goical.PropValue, "DATE")
	dtstart.Value = start.Format("20060102")
	event.Props.Set(dtstart)

	dtend := goical.NewProp(goical.PropDateTimeEnd)
	dtend.Params.Set(goical.PropValue, "DATE")
	dtend.Value = end.Format("20060102")
	event.Props.Set(dtend)

	event.Props.Set(&goical.Prop{Name: goical.PropRecurrenceRule, Value: "FREQ=YEARLY"})

	cal.Children = []*goical.Component{event}

	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}

	return &model.CalendarObject{
		ID:        id,
		Data:      buf.Bytes(),
		UpdatedAt: time.Now().UTC(),
	}, nil
}
