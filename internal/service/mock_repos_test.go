package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
	"github.com/mplazax/software-engineering-agh-sub000/internal/negotiation"
	"github.com/mplazax/software-engineering-agh-sub000/internal/repository"
	pkgerrors "github.com/mplazax/software-engineering-agh-sub000/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) ListByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var result []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			result = append(result, *u)
		}
	}
	return result, nil
}

// ── Mock CourseRepository ──

type mockCourseRepo struct {
	courses map[string]*model.Course
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{courses: make(map[string]*model.Course)}
}

func (m *mockCourseRepo) GetWithGroup(_ context.Context, id string) (*model.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock CourseEventRepository ──

type mockCourseEventRepo struct {
	mu      sync.Mutex
	events  map[string]*model.CourseEvent
	courses *mockCourseRepo
	failing error // 非 nil 时所有读取返回该错误
}

func newMockCourseEventRepo(courses *mockCourseRepo) *mockCourseEventRepo {
	return &mockCourseEventRepo{events: make(map[string]*model.CourseEvent), courses: courses}
}

func (m *mockCourseEventRepo) add(e model.CourseEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Version == 0 {
		e.Version = 1
	}
	m.events[e.EventID] = &e
}

func (m *mockCourseEventRepo) GetByID(_ context.Context, id string) (*model.CourseEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	cp.Course = m.courses.courses[e.CourseID]
	return &cp, nil
}

func (m *mockCourseEventRepo) ListOccurrences(_ context.Context, courseID string, slotID int, weekday time.Weekday, from, to time.Time) ([]model.CourseEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, m.failing
	}
	var result []model.CourseEvent
	for _, e := range m.events {
		day := negotiation.DateOf(e.Day)
		if e.CourseID != courseID || e.TimeSlotID != slotID || e.Canceled || day.Weekday() != weekday {
			continue
		}
		if day.Before(negotiation.DateOf(from)) || day.After(negotiation.DateOf(to)) {
			continue
		}
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day.Before(result[j].Day) })
	return result, nil
}

func (m *mockCourseEventRepo) ListConflicts(_ context.Context, roomID string, day time.Time, slotID int, excludeIDs []string) ([]model.CourseEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, m.failing
	}
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var result []model.CourseEvent
	for _, e := range m.events {
		if e.RoomID == roomID && e.TimeSlotID == slotID && !e.Canceled &&
			negotiation.DateOf(e.Day).Equal(negotiation.DateOf(day)) && !excluded[e.EventID] {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (m *mockCourseEventRepo) UpdatePlacement(_ context.Context, event *model.CourseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[event.EventID]
	if !ok || cur.Version != event.Version {
		return pkgerrors.ErrOptimisticLock
	}
	event.Version++
	cp := *event
	cp.Course = nil
	m.events[event.EventID] = &cp
	return nil
}

func (m *mockCourseEventRepo) CountOnDay(_ context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, e := range m.events {
		if !e.Canceled && negotiation.DateOf(e.Day).Equal(negotiation.DateOf(day)) {
			total++
		}
	}
	return total, nil
}

func (m *mockCourseEventRepo) get(id string) model.CourseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.events[id]
}

// ── Mock RoomRepository ──

type mockRoomRepo struct {
	rooms map[string]*model.Room
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{rooms: make(map[string]*model.Room)}
}

func (m *mockRoomRepo) add(id, name string, capacity int, equipment ...string) {
	r := &model.Room{RoomID: id, Name: name, Capacity: capacity, Type: "lecture", IsActive: true}
	for _, e := range equipment {
		r.Equipment = append(r.Equipment, model.Equipment{EquipmentID: "eq-" + e, Name: e})
	}
	m.rooms[id] = r
}

func (m *mockRoomRepo) GetByID(_ context.Context, id string) (*model.Room, error) {
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRoomRepo) ListEligible(_ context.Context, minCapacity int, equipment []string) ([]model.Room, error) {
	var result []model.Room
	for _, r := range m.rooms {
		if !r.IsActive || r.Capacity < minCapacity {
			continue
		}
		have := make(map[string]bool)
		for _, e := range r.Equipment {
			have[e.Name] = true
		}
		ok := true
		for _, e := range equipment {
			if !have[e] {
				ok = false
			}
		}
		if ok {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RoomID < result[j].RoomID })
	return result, nil
}

func (m *mockRoomRepo) List(_ context.Context) ([]model.Room, error) {
	var result []model.Room
	for _, r := range m.rooms {
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ── Mock RoomUnavailabilityRepository ──

type mockRoomUnavailabilityRepo struct {
	blocks []model.RoomUnavailability
}

func (m *mockRoomUnavailabilityRepo) ListOverlapping(_ context.Context, roomID string, from, to time.Time) ([]model.RoomUnavailability, error) {
	var result []model.RoomUnavailability
	for _, b := range m.blocks {
		if b.RoomID == roomID && b.StartAt.Before(to) && b.EndAt.After(from) {
			result = append(result, b)
		}
	}
	return result, nil
}

// ── Mock TimeSlotRepository ──

type mockTimeSlotRepo struct {
	slots []model.TimeSlot
}

func newMockTimeSlotRepo() *mockTimeSlotRepo {
	return &mockTimeSlotRepo{slots: []model.TimeSlot{
		{TimeSlotID: 1, StartTime: "08:00:00", EndTime: "09:30:00"},
		{TimeSlotID: 2, StartTime: "09:45:00", EndTime: "11:15:00"},
		{TimeSlotID: 3, StartTime: "11:30:00", EndTime: "13:00:00"},
		{TimeSlotID: 4, StartTime: "13:15:00", EndTime: "14:45:00"},
	}}
}

func (m *mockTimeSlotRepo) List(_ context.Context) ([]model.TimeSlot, error) {
	return m.slots, nil
}

// ── Mock ChangeRequestRepository ──

type mockChangeRequestRepo struct {
	mu     sync.Mutex
	items  map[string]*model.ChangeRequest
	events *mockCourseEventRepo
	seq    int
}

func newMockChangeRequestRepo(events *mockCourseEventRepo) *mockChangeRequestRepo {
	return &mockChangeRequestRepo{items: make(map[string]*model.ChangeRequest), events: events}
}

func (m *mockChangeRequestRepo) Create(_ context.Context, cr *model.ChangeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.CourseEventID == cr.CourseEventID && existing.Status == string(negotiation.StatusPending) {
			return gorm.ErrDuplicatedKey
		}
	}
	if cr.ChangeRequestID == "" {
		m.seq++
		cr.ChangeRequestID = fmt.Sprintf("cr-%d", m.seq)
	}
	cr.Version = 1
	cr.CreatedAt = time.Now()
	cr.UpdatedAt = cr.CreatedAt
	cp := *cr
	cp.CourseEvent = nil
	m.items[cr.ChangeRequestID] = &cp
	return nil
}

func (m *mockChangeRequestRepo) GetByID(_ context.Context, id string) (*model.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cr, ok := m.items[id]; ok {
		cp := *cr
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockChangeRequestRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.ChangeRequest, error) {
	return m.GetByID(ctx, id)
}

func (m *mockChangeRequestRepo) List(ctx context.Context, filter repository.ChangeRequestFilter) ([]model.ChangeRequest, int64, error) {
	m.mu.Lock()
	var all []model.ChangeRequest
	for _, cr := range m.items {
		all = append(all, *cr)
	}
	m.mu.Unlock()

	var result []model.ChangeRequest
	for _, cr := range all {
		if filter.Status != "" && cr.Status != filter.Status {
			continue
		}
		if filter.PartyID != "" && cr.InitiatorID != filter.PartyID {
			event, err := m.events.GetByID(ctx, cr.CourseEventID)
			if err != nil {
				continue
			}
			p := partiesOf(event)
			if p.TeacherID != filter.PartyID && p.LeaderID != filter.PartyID {
				continue
			}
		}
		result = append(result, cr)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChangeRequestID < result[j].ChangeRequestID })
	return result, int64(len(result)), nil
}

func (m *mockChangeRequestRepo) ExistsPendingForEvent(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cr := range m.items {
		if cr.CourseEventID == eventID && cr.Status == string(negotiation.StatusPending) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockChangeRequestRepo) Update(_ context.Context, cr *model.ChangeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[cr.ChangeRequestID]
	if !ok || cur.Version != cr.Version {
		return pkgerrors.ErrOptimisticLock
	}
	cr.Version++
	cp := *cr
	cp.CourseEvent = nil
	m.items[cr.ChangeRequestID] = &cp
	return nil
}

func (m *mockChangeRequestRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int64)
	for _, cr := range m.items {
		counts[cr.Status]++
	}
	return counts, nil
}

func (m *mockChangeRequestRepo) get(id string) model.ChangeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

// ── Mock ProposalRepository ──

type mockProposalRepo struct {
	mu    sync.Mutex
	items []model.AvailabilityProposal
}

func (m *mockProposalRepo) ListByRequest(_ context.Context, changeRequestID string) ([]model.AvailabilityProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.AvailabilityProposal
	for _, p := range m.items {
		if p.ChangeRequestID == changeRequestID && !p.DeletedAt.Valid {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *mockProposalRepo) ReplaceForParty(_ context.Context, changeRequestID, userID string, proposals []model.AvailabilityProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		p := &m.items[i]
		if p.ChangeRequestID == changeRequestID && p.UserID == userID && !p.DeletedAt.Valid {
			p.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
		}
	}
	for i, p := range proposals {
		p.ProposalID = fmt.Sprintf("ap-%d-%d", len(m.items), i)
		m.items = append(m.items, p)
	}
	return nil
}

func (m *mockProposalRepo) SoftDeleteByRequest(_ context.Context, changeRequestID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		p := &m.items[i]
		if p.ChangeRequestID == changeRequestID && !p.DeletedAt.Valid {
			p.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
		}
	}
	return nil
}

// ── Mock RecommendationRepository ──

type mockRecommendationRepo struct {
	mu    sync.Mutex
	items map[string]*model.Recommendation
	rooms *mockRoomRepo
	seq   int
}

func newMockRecommendationRepo(rooms *mockRoomRepo) *mockRecommendationRepo {
	return &mockRecommendationRepo{items: make(map[string]*model.Recommendation), rooms: rooms}
}

func (m *mockRecommendationRepo) ListByRequest(_ context.Context, changeRequestID string) ([]model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Recommendation
	for _, r := range m.items {
		if r.ChangeRequestID == changeRequestID && !r.DeletedAt.Valid {
			cp := *r
			cp.Room = m.rooms.rooms[r.RoomID]
			result = append(result, cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a := negotiation.NewDaySlot(result[i].Day, result[i].TimeSlotID)
		b := negotiation.NewDaySlot(result[j].Day, result[j].TimeSlotID)
		return a.Before(b)
	})
	return result, nil
}

func (m *mockRecommendationRepo) GetByID(_ context.Context, id string) (*model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.items[id]; ok && !r.DeletedAt.Valid {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRecommendationRepo) CreateBatch(_ context.Context, recs []model.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range recs {
		m.seq++
		recs[i].RecommendationID = fmt.Sprintf("rec-%d", m.seq)
		recs[i].Version = 1
		cp := recs[i]
		m.items[cp.RecommendationID] = &cp
	}
	return nil
}

func (m *mockRecommendationRepo) UpdateFlags(_ context.Context, rec *model.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[rec.RecommendationID]
	if !ok || cur.DeletedAt.Valid || cur.Version != rec.Version {
		return pkgerrors.ErrOptimisticLock
	}
	cur.AcceptedByTeacher = rec.AcceptedByTeacher
	cur.AcceptedByLeader = rec.AcceptedByLeader
	cur.RejectedByTeacher = rec.RejectedByTeacher
	cur.RejectedByLeader = rec.RejectedByLeader
	cur.Version++
	rec.Version = cur.Version
	return nil
}

func (m *mockRecommendationRepo) Supersede(_ context.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.items[id]; ok {
		r.Superseded = true
		r.Version++
	}
	return nil
}

func (m *mockRecommendationRepo) SupersedeOthers(_ context.Context, changeRequestID, winnerID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.items {
		if r.ChangeRequestID == changeRequestID && r.RecommendationID != winnerID && !r.DeletedAt.Valid {
			r.Superseded = true
			r.Version++
		}
	}
	return nil
}

func (m *mockRecommendationRepo) ClearByRequest(_ context.Context, changeRequestID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.items {
		if r.ChangeRequestID == changeRequestID && !r.DeletedAt.Valid {
			r.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
		}
	}
	return nil
}

// raw 包含已软删除的记录
func (m *mockRecommendationRepo) raw(id string) model.Recommendation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

// ── Mock ChangeRequestLogRepository ──

type mockChangeRequestLogRepo struct {
	mu    sync.Mutex
	items []model.ChangeRequestLog
}

func (m *mockChangeRequestLogRepo) Create(_ context.Context, log *model.ChangeRequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.LogID = fmt.Sprintf("log-%d", len(m.items)+1)
	m.items = append(m.items, *log)
	return nil
}

func (m *mockChangeRequestLogRepo) ListByRequest(_ context.Context, changeRequestID string, page, pageSize int) ([]model.ChangeRequestLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.ChangeRequestLog
	for _, l := range m.items {
		if l.ChangeRequestID == changeRequestID {
			all = append(all, l)
		}
	}
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m *mockChangeRequestLogRepo) Latest(_ context.Context, changeRequestID string) (*model.ChangeRequestLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].ChangeRequestID == changeRequestID {
			l := m.items[i]
			return &l, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockChangeRequestLogRepo) actions(changeRequestID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, l := range m.items {
		if l.ChangeRequestID == changeRequestID {
			out = append(out, l.Action)
		}
	}
	return out
}
