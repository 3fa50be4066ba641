package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
	"github.com/mplazax/software-engineering-agh-sub000/internal/negotiation"
	"github.com/mplazax/software-engineering-agh-sub000/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportNegotiation 导出一个调课申请的完整协商记录
	// 管理员与教务可导出任意申请
	ExportNegotiation(ctx context.Context, changeRequestID, callerID, callerRole string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportNegotiation — 导出调课协商记录为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "调课申请"：申请概要（字段 | 值）
//   - Sheet "推荐方案"：日期 | 时间段 | 时间 | 教室 | 容量 | 教师 | 组长 | 状态
//   - Sheet "可用时间"：角色 | 日期 | 时间段 | 时间
//   - Sheet "操作日志"：时间 | 操作人 | 角色 | 动作 | 状态变化 | 说明
//
// 只有参与方可以导出

func (s *exportService) ExportNegotiation(ctx context.Context, changeRequestID, callerID, callerRole string) (*bytes.Buffer, string, error) {
	// 1. 查询申请并校验参与方
	cr, err := s.repo.ChangeRequest.GetByID(ctx, changeRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrChangeRequestNotFound
		}
		s.logger.Error("查询调课申请失败", zap.String("change_request_id", changeRequestID), zap.Error(err))
		return nil, "", err
	}
	event, err := loadEventWithCourse(ctx, s.repo, cr.CourseEventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrCourseEventNotFound
		}
		s.logger.Error("查询课程事件失败", zap.String("event_id", cr.CourseEventID), zap.Error(err))
		return nil, "", err
	}
	parties := partiesOf(event)
	if !privilegedRole(callerRole) {
		if _, err := negotiation.ResolveRole(parties, callerID); err != nil {
			return nil, "", err
		}
	}

	// 2. 查询方案、可用时间、日志与参考数据
	recs, err := s.repo.Recommendation.ListByRequest(ctx, changeRequestID)
	if err != nil {
		s.logger.Error("查询推荐方案失败", zap.Error(err))
		return nil, "", err
	}
	proposals, err := s.repo.Proposal.ListByRequest(ctx, changeRequestID)
	if err != nil {
		s.logger.Error("查询可用时间失败", zap.Error(err))
		return nil, "", err
	}
	logs, _, err := s.repo.ChangeRequestLog.ListByRequest(ctx, changeRequestID, 1, 1000)
	if err != nil {
		s.logger.Error("查询调课申请日志失败", zap.Error(err))
		return nil, "", err
	}
	slots, err := s.repo.TimeSlot.List(ctx)
	if err != nil {
		s.logger.Error("查询时间段失败", zap.Error(err))
		return nil, "", err
	}
	slotTimes := make(map[int]string, len(slots))
	for _, ts := range slots {
		slotTimes[ts.TimeSlotID] = fmt.Sprintf("%s-%s", clock(ts.StartTime), clock(ts.EndTime))
	}

	userIDs := []string{cr.InitiatorID, parties.TeacherID, parties.LeaderID}
	for _, l := range logs {
		userIDs = append(userIDs, l.ActorID)
	}
	names, err := s.userNames(ctx, userIDs)
	if err != nil {
		return nil, "", err
	}

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	winnerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#C6EFCE"}, Pattern: 1},
	})

	// ── 调课申请 ──
	summary := "调课申请"
	idx, _ := f.NewSheet(summary)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	f.SetColWidth(summary, "A", "A", 16)
	f.SetColWidth(summary, "B", "B", 48)

	courseName := ""
	if event.Course != nil {
		courseName = event.Course.Name
	}
	resolvedAt := ""
	if cr.ResolvedAt != nil {
		resolvedAt = cr.ResolvedAt.Format("2006-01-02 15:04")
	}
	period := "否"
	if cr.Cyclical && cr.StartDate != nil && cr.EndDate != nil {
		period = fmt.Sprintf("是（%s 至 %s）", cr.StartDate.Format(negotiation.DayLayout), cr.EndDate.Format(negotiation.DayLayout))
	}
	resolvedBy := ""
	if cr.ResolvedBy != nil {
		resolvedBy = names[*cr.ResolvedBy]
	}
	fields := [][2]string{
		{"申请编号", cr.ChangeRequestID},
		{"课程", courseName},
		{"原安排", fmt.Sprintf("%s 第 %d 节", event.Day.Format(negotiation.DayLayout), event.TimeSlotID)},
		{"发起人", names[cr.InitiatorID]},
		{"教师", names[parties.TeacherID]},
		{"组长", names[parties.LeaderID]},
		{"状态", statusLabel(cr.Status)},
		{"原因", cr.Reason},
		{"最小容量", fmt.Sprintf("%d", cr.MinCapacity)},
		{"所需设备", strings.Join(cr.RequiredEquipment, "、")},
		{"周期性", period},
		{"处理人", resolvedBy},
		{"处理时间", resolvedAt},
	}
	f.SetCellValue(summary, "A1", "字段")
	f.SetCellValue(summary, "B1", "值")
	f.SetCellStyle(summary, "A1", "B1", headerStyle)
	for i, kv := range fields {
		f.SetCellValue(summary, cell("A", i+2), kv[0])
		f.SetCellValue(summary, cell("B", i+2), kv[1])
	}

	// ── 推荐方案 ──
	recSheet := "推荐方案"
	f.NewSheet(recSheet)
	writeHeader(f, recSheet, headerStyle, []string{"日期", "时间段", "时间", "教室", "容量", "教师", "组长", "状态"}, []float64{12, 8, 14, 16, 8, 10, 10, 10})
	for i := range recs {
		r := &recs[i]
		row := i + 2
		roomName, capacity := r.RoomID, 0
		if r.Room != nil {
			roomName, capacity = r.Room.Name, r.Room.Capacity
		}
		f.SetCellValue(recSheet, cell("A", row), r.Day.Format(negotiation.DayLayout))
		f.SetCellValue(recSheet, cell("B", row), r.TimeSlotID)
		f.SetCellValue(recSheet, cell("C", row), slotTimes[r.TimeSlotID])
		f.SetCellValue(recSheet, cell("D", row), roomName)
		f.SetCellValue(recSheet, cell("E", row), capacity)
		f.SetCellValue(recSheet, cell("F", row), decisionLabel(r.AcceptedByTeacher, r.RejectedByTeacher))
		f.SetCellValue(recSheet, cell("G", row), decisionLabel(r.AcceptedByLeader, r.RejectedByLeader))
		f.SetCellValue(recSheet, cell("H", row), recommendationLabel(cr, r))
		if cr.AcceptedRecommendationID != nil && *cr.AcceptedRecommendationID == r.RecommendationID {
			f.SetCellStyle(recSheet, cell("A", row), cell("H", row), winnerStyle)
		}
	}

	// ── 可用时间 ──
	propSheet := "可用时间"
	f.NewSheet(propSheet)
	writeHeader(f, propSheet, headerStyle, []string{"角色", "日期", "时间段", "时间"}, []float64{10, 12, 8, 14})
	teacher, leader := splitProposals(proposals, parties)
	row := 2
	for _, group := range []struct {
		label string
		slots []negotiation.DaySlot
	}{{"教师", teacher}, {"组长", leader}} {
		for _, ds := range group.slots {
			f.SetCellValue(propSheet, cell("A", row), group.label)
			f.SetCellValue(propSheet, cell("B", row), ds.Day.Format(negotiation.DayLayout))
			f.SetCellValue(propSheet, cell("C", row), ds.SlotID)
			f.SetCellValue(propSheet, cell("D", row), slotTimes[ds.SlotID])
			row++
		}
	}

	// ── 操作日志 ──
	logSheet := "操作日志"
	f.NewSheet(logSheet)
	writeHeader(f, logSheet, headerStyle, []string{"时间", "操作人", "角色", "动作", "状态变化", "说明"}, []float64{18, 12, 8, 12, 22, 40})
	for i, l := range logs {
		row := i + 2
		transition := l.ToStatus
		if l.FromStatus != "" && l.FromStatus != l.ToStatus {
			transition = fmt.Sprintf("%s → %s", l.FromStatus, l.ToStatus)
		}
		f.SetCellValue(logSheet, cell("A", row), l.CreatedAt.Format("2006-01-02 15:04:05"))
		f.SetCellValue(logSheet, cell("B", row), names[l.ActorID])
		f.SetCellValue(logSheet, cell("C", row), roleLabel(l.Role))
		f.SetCellValue(logSheet, cell("D", row), l.Action)
		f.SetCellValue(logSheet, cell("E", row), transition)
		f.SetCellValue(logSheet, cell("F", row), l.Detail)
	}

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	short := changeRequestID
	if len(short) > 8 {
		short = short[:8]
	}
	filename := fmt.Sprintf("调课申请_%s_%s.xlsx", short, time.Now().Format("20060102"))
	return buf, filename, nil
}

// userNames 查询用户姓名，查不到的用户以 id 显示
func (s *exportService) userNames(ctx context.Context, ids []string) (map[string]string, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}

	users, err := s.repo.User.ListByIDs(ctx, uniq)
	if err != nil {
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}
	names := make(map[string]string, len(uniq))
	for _, id := range uniq {
		names[id] = id
	}
	for _, u := range users {
		names[u.UserID] = u.Name
	}
	return names, nil
}

// ── 辅助函数 ──

func writeHeader(f *excelize.File, sheet string, style int, titles []string, widths []float64) {
	for i, t := range titles {
		col := colName(i)
		f.SetCellValue(sheet, cell(col, 1), t)
		if i < len(widths) {
			f.SetColWidth(sheet, col, col, widths[i])
		}
	}
	f.SetCellStyle(sheet, "A1", cell(colName(len(titles)-1), 1), style)
}

func statusLabel(status string) string {
	switch negotiation.RequestStatus(status) {
	case negotiation.StatusPending:
		return "协商中"
	case negotiation.StatusAccepted:
		return "已完成"
	case negotiation.StatusRejected:
		return "已拒绝"
	case negotiation.StatusCancelled:
		return "已撤销"
	}
	return status
}

func decisionLabel(accepted, rejected bool) string {
	switch {
	case accepted:
		return "接受"
	case rejected:
		return "拒绝"
	}
	return "未决定"
}

func recommendationLabel(cr *model.ChangeRequest, r *model.Recommendation) string {
	switch {
	case cr.AcceptedRecommendationID != nil && *cr.AcceptedRecommendationID == r.RecommendationID:
		return "已采用"
	case r.Superseded:
		return "已失效"
	case r.RejectedByTeacher || r.RejectedByLeader:
		return "已拒绝"
	}
	return "待决定"
}

func roleLabel(role string) string {
	switch negotiation.Role(role) {
	case negotiation.RoleTeacher:
		return "教师"
	case negotiation.RoleLeader:
		return "组长"
	}
	return role
}

// clock 截取 HH:MM
func clock(v string) string {
	if len(v) >= 5 {
		return v[:5]
	}
	return v
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
