package negotiation

import (
	"context"
	"errors"
	"sync"
	"time"
)

var standardSlots = []TimeSlot{
	{ID: 1, Start: "08:00", End: "09:30"},
	{ID: 2, Start: "09:45", End: "11:15"},
	{ID: 3, Start: "11:30", End: "13:00"},
	{ID: 4, Start: "13:15", End: "14:45"},
}

type fakeSlots struct {
	slots []TimeSlot
	err   error
}

func (f *fakeSlots) ListTimeSlots(_ context.Context) ([]TimeSlot, error) {
	return f.slots, f.err
}

type fakeCatalog struct {
	rooms   []Room
	blocks  []Unavailability
	err     error
	unavErr error
	calls   int
}

func (f *fakeCatalog) GetRoom(_ context.Context, id string) (*Room, error) {
	for _, r := range f.rooms {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, ErrRoomNotFound
}

func (f *fakeCatalog) ListEligibleRooms(_ context.Context, minCapacity int, required []string) ([]Room, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []Room
	for _, r := range f.rooms {
		if r.Active && r.Capacity >= minCapacity && r.HasEquipment(required) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListUnavailability(_ context.Context, roomID string, from, to time.Time) ([]Unavailability, error) {
	if f.unavErr != nil {
		return nil, f.unavErr
	}
	var out []Unavailability
	for _, b := range f.blocks {
		if b.RoomID == roomID && b.Overlaps(from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu        sync.Mutex
	events    map[string]Event
	block     bool
	committed []EventMove
}

func newFakeLedger(events ...Event) *fakeLedger {
	l := &fakeLedger{events: make(map[string]Event)}
	for _, e := range events {
		l.events[e.ID] = e
	}
	return l
}

func (f *fakeLedger) GetEvent(_ context.Context, id string) (*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &e, nil
}

func (f *fakeLedger) ListOccurrences(_ context.Context, anchor Event, from, to time.Time) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, e := range f.events {
		d := DateOf(e.Day)
		if e.CourseID == anchor.CourseID && e.SlotID == anchor.SlotID &&
			d.Weekday() == DateOf(anchor.Day).Weekday() && !e.Canceled &&
			!d.Before(DateOf(from)) && !d.After(DateOf(to)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListConflicts(ctx context.Context, roomID string, day time.Time, slotID int, exclude []string) ([]Event, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []Event
	for _, e := range f.events {
		if skip[e.ID] || e.Canceled {
			continue
		}
		if e.RoomID == roomID && e.SlotID == slotID && DateOf(e.Day).Equal(DateOf(day)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) CommitReschedule(_ context.Context, moves []EventMove) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range moves {
		e, ok := f.events[m.EventID]
		if !ok {
			return errors.New("missing event")
		}
		e.Day, e.SlotID, e.RoomID = m.Day, m.SlotID, m.RoomID
		f.events[m.EventID] = e
	}
	f.committed = append(f.committed, moves...)
	return nil
}

func day(s string) time.Time {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ds(d string, slot int) DaySlot { return NewDaySlot(day(d), slot) }
