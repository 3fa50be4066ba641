//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
	"github.com/mplazax/software-engineering-agh-sub000/internal/repository"
	"github.com/mplazax/software-engineering-agh-sub000/pkg/database"
	pkgerrors "github.com/mplazax/software-engineering-agh-sub000/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=postgres password=postgres dbname=reschedule_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	// 使用与线上一致的迁移脚本建表
	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "迁移失败: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type fixture struct {
	teacher, leader model.User
	group           model.Group
	course          model.Course
	small, large    model.Room
	projector       model.Equipment
	event           model.CourseEvent
}

var testDay = time.Date(2031, 3, 3, 0, 0, 0, 0, time.UTC)

// setupTestData 创建一门课程、两间教室和一个课程事件，返回清理函数
func setupTestData(t *testing.T) (*fixture, func()) {
	t.Helper()
	ctx := context.Background()
	db := testDB.WithContext(ctx)
	f := &fixture{}

	mustCreate := func(v interface{}) {
		t.Helper()
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("创建测试数据失败 %T: %v", v, err)
		}
	}

	f.teacher = model.User{Name: "张老师", Email: uuid.NewString() + "@agh.edu.pl", Role: "teacher"}
	f.leader = model.User{Name: "李组长", Email: uuid.NewString() + "@agh.edu.pl", Role: "leader"}
	mustCreate(&f.teacher)
	mustCreate(&f.leader)

	f.group = model.Group{Name: "测试组-" + uuid.NewString()[:8], Year: 2, LeaderID: &f.leader.UserID}
	mustCreate(&f.group)
	f.course = model.Course{Name: "数据库系统", TeacherID: f.teacher.UserID, GroupID: f.group.GroupID}
	mustCreate(&f.course)

	f.projector = model.Equipment{Name: "projector-" + uuid.NewString()[:8]}
	mustCreate(&f.projector)
	f.small = model.Room{Name: "S-" + uuid.NewString()[:8], Capacity: 20, Type: "seminar", IsActive: true}
	f.large = model.Room{Name: "L-" + uuid.NewString()[:8], Capacity: 120, Type: "lecture", IsActive: true}
	mustCreate(&f.small)
	mustCreate(&f.large)
	if err := db.Model(&f.large).Association("Equipment").Append(&f.projector); err != nil {
		t.Fatalf("关联设备失败: %v", err)
	}

	f.event = model.CourseEvent{CourseID: f.course.CourseID, RoomID: f.small.RoomID, Day: testDay, TimeSlotID: 1}
	mustCreate(&f.event)

	cleanup := func() {
		db.Exec("DELETE FROM change_request_logs WHERE change_request_id IN (SELECT change_request_id FROM change_requests WHERE course_event_id = ?)", f.event.EventID)
		db.Exec("DELETE FROM recommendations WHERE change_request_id IN (SELECT change_request_id FROM change_requests WHERE course_event_id = ?)", f.event.EventID)
		db.Exec("DELETE FROM availability_proposals WHERE change_request_id IN (SELECT change_request_id FROM change_requests WHERE course_event_id = ?)", f.event.EventID)
		db.Exec("DELETE FROM change_requests WHERE course_event_id = ?", f.event.EventID)
		db.Exec("DELETE FROM course_events WHERE course_id = ?", f.course.CourseID)
		db.Exec("DELETE FROM room_unavailability WHERE room_id IN ?", []string{f.small.RoomID, f.large.RoomID})
		db.Exec("DELETE FROM room_equipment WHERE room_id IN ?", []string{f.small.RoomID, f.large.RoomID})
		db.Exec("DELETE FROM rooms WHERE room_id IN ?", []string{f.small.RoomID, f.large.RoomID})
		db.Exec("DELETE FROM equipment WHERE equipment_id = ?", f.projector.EquipmentID)
		db.Exec("DELETE FROM courses WHERE course_id = ?", f.course.CourseID)
		db.Exec("DELETE FROM groups WHERE group_id = ?", f.group.GroupID)
		db.Exec("DELETE FROM users WHERE user_id IN ?", []string{f.teacher.UserID, f.leader.UserID})
	}
	return f, cleanup
}

func newChangeRequest(f *fixture) *model.ChangeRequest {
	return &model.ChangeRequest{
		CourseEventID:     f.event.EventID,
		InitiatorID:       f.teacher.UserID,
		Reason:            "教室设备维修",
		RequiredEquipment: model.StringArray{},
		Status:            "PENDING",
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Transaction Rollback
// ═══════════════════════════════════════════════════════════

func TestTransaction_Rollback(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	tx, err := repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx 失败: %v", err)
	}
	txRepo := repo.WithTx(tx)

	cr := newChangeRequest(f)
	if err := txRepo.ChangeRequest.Create(ctx, cr); err != nil {
		tx.Rollback()
		t.Fatalf("事务内创建调课申请失败: %v", err)
	}
	tx.Rollback()

	if _, err := repo.ChangeRequest.GetByID(ctx, cr.ChangeRequestID); err == nil {
		t.Error("事务回滚后调课申请不应存在")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: ChangeRequest
// ═══════════════════════════════════════════════════════════

func TestChangeRequest_OptimisticLock(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	cr := newChangeRequest(f)
	if err := repo.ChangeRequest.Create(ctx, cr); err != nil {
		t.Fatalf("创建调课申请失败: %v", err)
	}

	stale, err := repo.ChangeRequest.GetByID(ctx, cr.ChangeRequestID)
	if err != nil {
		t.Fatalf("查询调课申请失败: %v", err)
	}

	cr.Status = "CANCELLED"
	if err := repo.ChangeRequest.Update(ctx, cr); err != nil {
		t.Fatalf("第一次更新应成功: %v", err)
	}
	if cr.Version != 2 {
		t.Errorf("期望版本号 2，实际 %d", cr.Version)
	}

	stale.Status = "REJECTED"
	if err := repo.ChangeRequest.Update(ctx, stale); err != pkgerrors.ErrOptimisticLock {
		t.Errorf("期望 ErrOptimisticLock，得到: %v", err)
	}
}

func TestChangeRequest_SinglePendingPerEvent(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	if err := repo.ChangeRequest.Create(ctx, newChangeRequest(f)); err != nil {
		t.Fatalf("创建调课申请失败: %v", err)
	}
	exists, err := repo.ChangeRequest.ExistsPendingForEvent(ctx, f.event.EventID)
	if err != nil || !exists {
		t.Fatalf("期望存在进行中的申请: exists=%v err=%v", exists, err)
	}
	if err := repo.ChangeRequest.Create(ctx, newChangeRequest(f)); err == nil {
		t.Error("同一课程事件的第二个进行中申请应被唯一索引拒绝")
	}
}

func TestChangeRequest_ListByParty(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	if err := repo.ChangeRequest.Create(ctx, newChangeRequest(f)); err != nil {
		t.Fatalf("创建调课申请失败: %v", err)
	}

	list, total, err := repo.ChangeRequest.List(ctx, repository.ChangeRequestFilter{
		PartyID: f.leader.UserID, Status: "PENDING", Page: 1, PageSize: 20,
	})
	if err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("组长应看到 1 条申请，实际 total=%d len=%d", total, len(list))
	}
	if list[0].CourseEvent == nil || list[0].CourseEvent.EventID != f.event.EventID {
		t.Error("应预加载课程事件")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Room Catalog
// ═══════════════════════════════════════════════════════════

func TestRoom_ListEligible(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	rooms, err := repo.Room.ListEligible(ctx, 100, []string{f.projector.Name})
	if err != nil {
		t.Fatalf("ListEligible 失败: %v", err)
	}
	found := false
	for _, r := range rooms {
		if r.RoomID == f.small.RoomID {
			t.Error("小教室不满足容量与设备要求")
		}
		if r.RoomID == f.large.RoomID {
			found = true
			if len(r.EquipmentNames()) != 1 {
				t.Errorf("应预加载设备，实际 %v", r.EquipmentNames())
			}
		}
	}
	if !found {
		t.Error("大教室应满足条件")
	}
}

func TestRoomUnavailability_ListOverlapping(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	block := model.RoomUnavailability{
		RoomID:  f.large.RoomID,
		StartAt: testDay.Add(9 * time.Hour),
		EndAt:   testDay.Add(12 * time.Hour),
		Reason:  "维修",
	}
	if err := testDB.Create(&block).Error; err != nil {
		t.Fatalf("创建不可用时段失败: %v", err)
	}

	got, err := repo.RoomUnavailability.ListOverlapping(ctx, f.large.RoomID, testDay.Add(11*time.Hour), testDay.Add(13*time.Hour))
	if err != nil || len(got) != 1 {
		t.Errorf("期望 1 个相交区间: len=%d err=%v", len(got), err)
	}
	got, err = repo.RoomUnavailability.ListOverlapping(ctx, f.large.RoomID, testDay.Add(12*time.Hour), testDay.Add(14*time.Hour))
	if err != nil || len(got) != 0 {
		t.Errorf("首尾相接不算相交: len=%d err=%v", len(got), err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Course Events
// ═══════════════════════════════════════════════════════════

func TestCourseEvent_ConflictsAndPlacement(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	conflicts, err := repo.CourseEvent.ListConflicts(ctx, f.small.RoomID, testDay, 1, nil)
	if err != nil || len(conflicts) != 1 {
		t.Fatalf("期望 1 个冲突: len=%d err=%v", len(conflicts), err)
	}
	conflicts, err = repo.CourseEvent.ListConflicts(ctx, f.small.RoomID, testDay, 1, []string{f.event.EventID})
	if err != nil || len(conflicts) != 0 {
		t.Fatalf("排除自身后不应有冲突: len=%d err=%v", len(conflicts), err)
	}

	event, err := repo.CourseEvent.GetByID(ctx, f.event.EventID)
	if err != nil {
		t.Fatalf("查询课程事件失败: %v", err)
	}
	stale := *event

	event.RoomID, event.TimeSlotID = f.large.RoomID, 3
	if err := repo.CourseEvent.UpdatePlacement(ctx, event); err != nil {
		t.Fatalf("UpdatePlacement 失败: %v", err)
	}
	stale.TimeSlotID = 4
	if err := repo.CourseEvent.UpdatePlacement(ctx, &stale); err != pkgerrors.ErrOptimisticLock {
		t.Errorf("期望 ErrOptimisticLock，得到: %v", err)
	}
}

func TestCourse_GetWithGroup(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	course, err := repo.Course.GetWithGroup(context.Background(), f.course.CourseID)
	if err != nil {
		t.Fatalf("GetWithGroup 失败: %v", err)
	}
	if course.Group == nil || course.Group.LeaderID == nil || *course.Group.LeaderID != f.leader.UserID {
		t.Error("应预加载学生组及组长")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Proposals & Recommendations
// ═══════════════════════════════════════════════════════════

func TestProposal_ReplaceForParty(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	cr := newChangeRequest(f)
	if err := repo.ChangeRequest.Create(ctx, cr); err != nil {
		t.Fatalf("创建调课申请失败: %v", err)
	}

	id, uid := cr.ChangeRequestID, f.teacher.UserID
	first := []model.AvailabilityProposal{
		{ChangeRequestID: id, UserID: uid, Day: testDay.AddDate(0, 0, 7), TimeSlotID: 2},
		{ChangeRequestID: id, UserID: uid, Day: testDay.AddDate(0, 0, 8), TimeSlotID: 3},
	}
	if err := repo.Proposal.ReplaceForParty(ctx, cr.ChangeRequestID, f.teacher.UserID, first); err != nil {
		t.Fatalf("第一次提交失败: %v", err)
	}
	second := []model.AvailabilityProposal{{ChangeRequestID: id, UserID: uid, Day: testDay.AddDate(0, 0, 7), TimeSlotID: 2}}
	if err := repo.Proposal.ReplaceForParty(ctx, cr.ChangeRequestID, f.teacher.UserID, second); err != nil {
		t.Fatalf("重新提交失败: %v", err)
	}

	list, err := repo.Proposal.ListByRequest(ctx, cr.ChangeRequestID)
	if err != nil {
		t.Fatalf("ListByRequest 失败: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("重新提交应替换旧集合，实际 %d 条", len(list))
	}
}

func TestRecommendation_FlagsAndClear(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	cr := newChangeRequest(f)
	if err := repo.ChangeRequest.Create(ctx, cr); err != nil {
		t.Fatalf("创建调课申请失败: %v", err)
	}
	recs := []model.Recommendation{
		{ChangeRequestID: cr.ChangeRequestID, Day: testDay.AddDate(0, 0, 8), TimeSlotID: 3, RoomID: f.large.RoomID},
		{ChangeRequestID: cr.ChangeRequestID, Day: testDay.AddDate(0, 0, 7), TimeSlotID: 2, RoomID: f.large.RoomID},
	}
	if err := repo.Recommendation.CreateBatch(ctx, recs); err != nil {
		t.Fatalf("CreateBatch 失败: %v", err)
	}

	list, err := repo.Recommendation.ListByRequest(ctx, cr.ChangeRequestID)
	if err != nil || len(list) != 2 {
		t.Fatalf("期望 2 个推荐方案: len=%d err=%v", len(list), err)
	}
	if !list[0].Day.Before(list[1].Day) {
		t.Error("推荐方案应按日期升序")
	}

	rec := list[0]
	stale := rec
	rec.AcceptedByTeacher = true
	if err := repo.Recommendation.UpdateFlags(ctx, &rec); err != nil {
		t.Fatalf("UpdateFlags 失败: %v", err)
	}
	stale.RejectedByTeacher = true
	if err := repo.Recommendation.UpdateFlags(ctx, &stale); err != pkgerrors.ErrOptimisticLock {
		t.Errorf("期望 ErrOptimisticLock，得到: %v", err)
	}

	if err := repo.Recommendation.ClearByRequest(ctx, cr.ChangeRequestID, f.teacher.UserID); err != nil {
		t.Fatalf("ClearByRequest 失败: %v", err)
	}
	list, err = repo.Recommendation.ListByRequest(ctx, cr.ChangeRequestID)
	if err != nil || len(list) != 0 {
		t.Errorf("清除后不应有有效方案: len=%d err=%v", len(list), err)
	}
}

func TestRecommendation_SupersedeInsideSavepoint(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	cr := newChangeRequest(f)
	if err := repo.ChangeRequest.Create(ctx, cr); err != nil {
		t.Fatalf("创建调课申请失败: %v", err)
	}
	recs := []model.Recommendation{
		{ChangeRequestID: cr.ChangeRequestID, Day: testDay.AddDate(0, 0, 7), TimeSlotID: 2, RoomID: f.large.RoomID},
	}
	if err := repo.Recommendation.CreateBatch(ctx, recs); err != nil {
		t.Fatalf("CreateBatch 失败: %v", err)
	}

	tx, err := repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx 失败: %v", err)
	}
	txRepo := repo.WithTx(tx)

	// 保存点内占用同一教室同一时间段两次，唯一索引冲突只回滚保存点
	err = txRepo.Savepoint("double_booking", func() error {
		moved := f.event
		moved.Day, moved.TimeSlotID, moved.RoomID = testDay.AddDate(0, 0, 7), 2, f.large.RoomID
		if err := txRepo.CourseEvent.UpdatePlacement(ctx, &moved); err != nil {
			return err
		}
		dup := model.CourseEvent{CourseID: f.course.CourseID, RoomID: f.large.RoomID, Day: moved.Day, TimeSlotID: 2}
		return tx.Create(&dup).Error
	})
	if err == nil {
		tx.Rollback()
		t.Fatal("期望唯一索引冲突")
	}
	if err := txRepo.Recommendation.Supersede(ctx, recs[0].RecommendationID, f.teacher.UserID); err != nil {
		tx.Rollback()
		t.Fatalf("回滚到保存点后事务应仍可用: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("提交失败: %v", err)
	}

	rec, err := repo.Recommendation.GetByID(ctx, recs[0].RecommendationID)
	if err != nil || !rec.Superseded || rec.Version != 2 {
		t.Errorf("方案应被标记失效且版本号递增: %+v err=%v", rec, err)
	}
	ev, err := repo.CourseEvent.GetByID(ctx, f.event.EventID)
	if err != nil || ev.TimeSlotID != 1 {
		t.Errorf("保存点内的改期应被回滚: %+v err=%v", ev, err)
	}
}

func TestStatsCounts(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	before, err := repo.ChangeRequest.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus 失败: %v", err)
	}
	if err := repo.ChangeRequest.Create(ctx, newChangeRequest(f)); err != nil {
		t.Fatalf("创建调课申请失败: %v", err)
	}
	after, err := repo.ChangeRequest.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus 失败: %v", err)
	}
	if after["PENDING"] != before["PENDING"]+1 {
		t.Errorf("PENDING 计数应加 1: before=%d after=%d", before["PENDING"], after["PENDING"])
	}

	canceled := model.CourseEvent{CourseID: f.course.CourseID, RoomID: f.large.RoomID, Day: testDay, TimeSlotID: 2, Canceled: true}
	if err := testDB.Create(&canceled).Error; err != nil {
		t.Fatalf("创建课程事件失败: %v", err)
	}
	n, err := repo.CourseEvent.CountOnDay(ctx, testDay)
	if err != nil {
		t.Fatalf("CountOnDay 失败: %v", err)
	}
	if n != 1 {
		t.Errorf("当天未取消的课程期望 1，实际=%d", n)
	}
}
