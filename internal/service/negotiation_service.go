package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mplazax/software-engineering-agh-sub000/internal/dto"
	"github.com/mplazax/software-engineering-agh-sub000/internal/model"
	"github.com/mplazax/software-engineering-agh-sub000/internal/negotiation"
	"github.com/mplazax/software-engineering-agh-sub000/internal/repository"
	pkgerrors "github.com/mplazax/software-engineering-agh-sub000/pkg/errors"
)

// ── 调课协商模块业务错误 ──

var (
	ErrChangeRequestNotFound  = errors.New("调课申请不存在")
	ErrRecommendationNotFound = errors.New("推荐方案不存在")
	ErrCourseEventNotFound    = errors.New("课程事件不存在")
	ErrNotInitiator           = errors.New("只有发起人可以撤销调课申请")
	ErrActiveRequestExists    = errors.New("该课程事件已有进行中的调课申请")
	ErrPrivilegedOnly         = errors.New("仅管理员与教务可以访问")
)

// 操作日志动作
const (
	actionCreate        = "create"
	actionSubmit        = "submit"
	actionGenerate      = "generate"
	actionAccept        = "accept"
	actionReject        = "reject"
	actionExhausted     = "exhausted"
	actionCommit        = "commit"
	actionRejectRequest = "reject_request"
	actionCancel        = "cancel"
	actionUnavailable   = "placement_unavailable"
)

var tracer = otel.Tracer("github.com/mplazax/software-engineering-agh-sub000/internal/service")

// RequestLocker 跨实例的调课申请互斥锁
type RequestLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NegotiationOptions 协商服务运行参数
type NegotiationOptions struct {
	DependencyTimeout       time.Duration
	LockWait                time.Duration
	Location                *time.Location
	RoomPolicy              negotiation.RoomPolicy
	RequireNonEmptyProposal bool
	Metrics                 *negotiation.Metrics
	Locker                  RequestLocker // 可选，未配置 Redis 时为 nil
}

// NegotiationService 调课协商业务接口
// 除 CreateChangeRequest 外，所有写操作都在同一调课申请的互斥锁内执行
type NegotiationService interface {
	CreateChangeRequest(ctx context.Context, req *dto.CreateChangeRequestRequest, callerID string) (*dto.NegotiationStateResponse, error)
	// 只读操作传入 callerRole：管理员与教务可读取任意申请
	GetChangeRequest(ctx context.Context, id, callerID, callerRole string) (*dto.NegotiationStateResponse, error)
	ListChangeRequests(ctx context.Context, req *dto.ChangeRequestListRequest, callerID, callerRole string) ([]dto.ChangeRequestResponse, int64, error)
	RejectRequest(ctx context.Context, id, callerID string, req *dto.ChangeRequestActionRequest) (*dto.NegotiationStateResponse, error)
	CancelRequest(ctx context.Context, id, callerID string, req *dto.ChangeRequestActionRequest) (*dto.NegotiationStateResponse, error)
	ListLogs(ctx context.Context, id, callerID, callerRole string, page, pageSize int) ([]dto.ChangeRequestLogResponse, int64, error)
	Stats(ctx context.Context, callerRole string) (*dto.NegotiationStatsResponse, error)

	SubmitAvailability(ctx context.Context, req *dto.SubmitAvailabilityRequest, callerID string) (*dto.NegotiationStateResponse, error)
	ListProposals(ctx context.Context, id, callerID, callerRole string) (*dto.ProposalSetResponse, error)

	GenerateRecommendations(ctx context.Context, id, callerID string) (*dto.NegotiationStateResponse, error)
	ListRecommendations(ctx context.Context, id, callerID, callerRole string) (*dto.NegotiationStateResponse, error)
	AcceptRecommendation(ctx context.Context, recommendationID, callerID string) (*dto.NegotiationStateResponse, error)
	RejectRecommendation(ctx context.Context, recommendationID, callerID string) (*dto.NegotiationStateResponse, error)
}

type negotiationService struct {
	repo    *repository.Repository
	matcher *negotiation.Matcher
	keys    *negotiation.KeyedMutex
	opts    NegotiationOptions
	logger  *zap.Logger
	now     func() time.Time
}

// NewNegotiationService 创建 NegotiationService 实例
func NewNegotiationService(repo *repository.Repository, opts NegotiationOptions, logger *zap.Logger) NegotiationService {
	return newNegotiationService(repo, opts, logger)
}

func newNegotiationService(repo *repository.Repository, opts NegotiationOptions, logger *zap.Logger) *negotiationService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	matcher := negotiation.NewMatcher(
		roomCatalog{repo: repo},
		eventLedger{repo: repo},
		timeSlotSource{repo: repo},
		negotiation.MatcherOptions{
			Policy:   opts.RoomPolicy,
			Timeout:  opts.DependencyTimeout,
			Location: opts.Location,
			Metrics:  opts.Metrics,
		},
	)
	return &negotiationService{
		repo:    repo,
		matcher: matcher,
		keys:    negotiation.NewKeyedMutex(),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// ────────────────────── Create ──────────────────────

func (s *negotiationService) CreateChangeRequest(ctx context.Context, req *dto.CreateChangeRequestRequest, callerID string) (resp *dto.NegotiationStateResponse, err error) {
	ctx, span := startSpan(ctx, "CreateChangeRequest", req.CourseEventID)
	defer func() { endSpan(span, err) }()

	if req.MinCapacity < 0 {
		return nil, &negotiation.ValidationError{Field: "min_capacity", Reason: "不能为负数"}
	}
	start, err := parseOptionalDay("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseOptionalDay("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}

	event, parties, err := s.loadEvent(ctx, s.repo, req.CourseEventID)
	if err != nil {
		return nil, err
	}
	if event.Canceled {
		return nil, &negotiation.ValidationError{Field: "course_event_id", Reason: "课程事件已取消"}
	}
	role, err := negotiation.ResolveRole(parties, callerID)
	if err != nil {
		return nil, err
	}
	if err := negotiation.ValidateRecurrence(req.Cyclical, event.Day, start, end); err != nil {
		return nil, err
	}

	exists, err := s.repo.ChangeRequest.ExistsPendingForEvent(ctx, event.EventID)
	if err != nil {
		s.logger.Error("查询进行中的调课申请失败", zap.String("event_id", event.EventID), zap.Error(err))
		return nil, err
	}
	if exists {
		return nil, ErrActiveRequestExists
	}

	cr := &model.ChangeRequest{
		CourseEventID:     event.EventID,
		InitiatorID:       callerID,
		Reason:            strings.TrimSpace(req.Reason),
		MinCapacity:       req.MinCapacity,
		RequiredEquipment: model.StringArray(normalizeEquipment(req.RequiredEquipment)),
		Cyclical:          req.Cyclical,
		StartDate:         start,
		EndDate:           end,
		Status:            string(negotiation.StatusPending),
	}
	cr.CreatedBy = &callerID
	cr.UpdatedBy = &callerID

	err = s.inTx(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.ChangeRequest.Create(ctx, cr); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrActiveRequestExists
			}
			s.logger.Error("创建调课申请失败", zap.String("event_id", event.EventID), zap.Error(err))
			return err
		}
		if err := s.appendLog(ctx, txRepo, cr, callerID, role, actionCreate, "", nil, cr.Reason); err != nil {
			return err
		}
		cr.CourseEvent = event
		resp = s.toState(cr, nil, role, negotiation.OutcomeAwaitingProposals)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("调课申请已创建",
		zap.String("change_request_id", cr.ChangeRequestID),
		zap.String("event_id", event.EventID),
		zap.String("initiator_id", callerID),
		zap.Bool("cyclical", cr.Cyclical),
	)
	return resp, nil
}

// ────────────────────── Get / List ──────────────────────

func (s *negotiationService) GetChangeRequest(ctx context.Context, id, callerID, callerRole string) (*dto.NegotiationStateResponse, error) {
	return s.readState(ctx, "GetChangeRequest", id, callerID, callerRole)
}

func (s *negotiationService) ListRecommendations(ctx context.Context, id, callerID, callerRole string) (*dto.NegotiationStateResponse, error) {
	return s.readState(ctx, "ListRecommendations", id, callerID, callerRole)
}

func (s *negotiationService) readState(ctx context.Context, op, id, callerID, callerRole string) (resp *dto.NegotiationStateResponse, err error) {
	ctx, span := startSpan(ctx, op, id)
	defer func() { endSpan(span, err) }()

	cr, err := s.loadRequest(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	_, role, parties, err := s.authorizeRead(ctx, s.repo, cr, callerID, callerRole)
	if err != nil {
		return nil, err
	}

	recs, err := s.repo.Recommendation.ListByRequest(ctx, id)
	if err != nil {
		s.logger.Error("查询推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, err
	}
	outcome, err := s.deriveOutcome(ctx, s.repo, cr, parties, recs)
	if err != nil {
		return nil, err
	}
	return s.toState(cr, recs, role, outcome), nil
}

func (s *negotiationService) ListChangeRequests(ctx context.Context, req *dto.ChangeRequestListRequest, callerID, callerRole string) ([]dto.ChangeRequestResponse, int64, error) {
	filter := repository.ChangeRequestFilter{
		Status:   req.Status,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
	}
	// 管理员与教务可查看全部申请，其他用户只能看到自己参与的
	if req.Mine || !privilegedRole(callerRole) {
		filter.PartyID = callerID
	}

	list, total, err := s.repo.ChangeRequest.List(ctx, filter)
	if err != nil {
		s.logger.Error("列出调课申请失败", zap.String("caller_id", callerID), zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.ChangeRequestResponse, 0, len(list))
	for i := range list {
		result = append(result, toChangeRequestResponse(&list[i]))
	}
	return result, total, nil
}

func (s *negotiationService) ListLogs(ctx context.Context, id, callerID, callerRole string, page, pageSize int) ([]dto.ChangeRequestLogResponse, int64, error) {
	cr, err := s.loadRequest(ctx, s.repo, id)
	if err != nil {
		return nil, 0, err
	}
	if _, _, _, err := s.authorizeRead(ctx, s.repo, cr, callerID, callerRole); err != nil {
		return nil, 0, err
	}

	logs, total, err := s.repo.ChangeRequestLog.ListByRequest(ctx, id, page, pageSize)
	if err != nil {
		s.logger.Error("查询调课申请日志失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, 0, err
	}
	result := make([]dto.ChangeRequestLogResponse, 0, len(logs))
	for i := range logs {
		result = append(result, toLogResponse(&logs[i]))
	}
	return result, total, nil
}

// Stats 管理端统计：各状态申请数、启用教室数与当天课程数（协商时区）
func (s *negotiationService) Stats(ctx context.Context, callerRole string) (*dto.NegotiationStatsResponse, error) {
	if !privilegedRole(callerRole) {
		return nil, ErrPrivilegedOnly
	}

	counts, err := s.repo.ChangeRequest.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("统计调课申请失败", zap.Error(err))
		return nil, err
	}
	rooms, err := s.repo.Room.List(ctx)
	if err != nil {
		s.logger.Error("查询教室失败", zap.Error(err))
		return nil, err
	}
	today := s.today()
	events, err := s.repo.CourseEvent.CountOnDay(ctx, today)
	if err != nil {
		s.logger.Error("统计当天课程失败", zap.Error(err))
		return nil, err
	}

	resp := &dto.NegotiationStatsResponse{
		Pending:     counts[string(negotiation.StatusPending)],
		ByStatus:    make(map[string]int64, 4),
		EventsToday: events,
		Day:         today.Format(negotiation.DayLayout),
	}
	for _, st := range []negotiation.RequestStatus{negotiation.StatusPending, negotiation.StatusAccepted, negotiation.StatusRejected, negotiation.StatusCancelled} {
		resp.ByStatus[string(st)] = counts[string(st)]
	}
	for i := range rooms {
		if rooms[i].IsActive {
			resp.ActiveRooms++
		}
	}
	return resp, nil
}

// ────────────────────── Reject / Cancel ──────────────────────

func (s *negotiationService) RejectRequest(ctx context.Context, id, callerID string, req *dto.ChangeRequestActionRequest) (*dto.NegotiationStateResponse, error) {
	return s.terminate(ctx, id, callerID, negotiation.StatusRejected, actionReason(req))
}

func (s *negotiationService) CancelRequest(ctx context.Context, id, callerID string, req *dto.ChangeRequestActionRequest) (*dto.NegotiationStateResponse, error) {
	return s.terminate(ctx, id, callerID, negotiation.StatusCancelled, actionReason(req))
}

// terminate 将申请置为 REJECTED 或 CANCELLED，并作废全部推荐方案与可用时间
func (s *negotiationService) terminate(ctx context.Context, id, callerID string, to negotiation.RequestStatus, reason string) (resp *dto.NegotiationStateResponse, err error) {
	action, outcome := actionRejectRequest, negotiation.OutcomeRejected
	if to == negotiation.StatusCancelled {
		action, outcome = actionCancel, negotiation.OutcomeCancelled
	}

	ctx, span := startSpan(ctx, action, id)
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.inTx(ctx, func(txRepo *repository.Repository) error {
		cr, err := s.loadForUpdate(ctx, txRepo, id)
		if err != nil {
			return err
		}
		_, role, _, err := s.authorize(ctx, txRepo, cr, callerID)
		if err != nil {
			return err
		}
		if to == negotiation.StatusCancelled && cr.InitiatorID != callerID {
			return ErrNotInitiator
		}

		from := cr.Status
		if err := negotiation.Transition(negotiation.RequestStatus(from), to); err != nil {
			return err
		}
		if err := s.resolve(ctx, txRepo, cr, to, nil, callerID); err != nil {
			return err
		}
		if err := s.clearNegotiation(ctx, txRepo, id, callerID); err != nil {
			return err
		}
		if err := s.appendLog(ctx, txRepo, cr, callerID, role, action, from, nil, reason); err != nil {
			return err
		}
		resp = s.toState(cr, nil, role, outcome)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.opts.Metrics.ObserveResolution(outcome)
	s.logger.Info("调课申请已结束",
		zap.String("change_request_id", id),
		zap.String("status", string(to)),
		zap.String("actor_id", callerID),
	)
	return resp, nil
}

// ────────────────────── Availability ──────────────────────

func (s *negotiationService) SubmitAvailability(ctx context.Context, req *dto.SubmitAvailabilityRequest, callerID string) (resp *dto.NegotiationStateResponse, err error) {
	id := req.ChangeRequestID
	ctx, span := startSpan(ctx, "SubmitAvailability", id)
	defer func() { endSpan(span, err) }()

	// 校验全部在加锁与写入之前完成
	input := make([]negotiation.DaySlot, 0, len(req.Slots))
	for i, in := range req.Slots {
		day, err := negotiation.ParseDay(in.Day)
		if err != nil {
			return nil, &negotiation.ValidationError{Field: fmt.Sprintf("slots[%d].day", i), Reason: "日期格式应为 YYYY-MM-DD"}
		}
		input = append(input, negotiation.NewDaySlot(day, in.TimeSlotID))
	}
	known, err := s.timeSlots(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := negotiation.NormalizeProposals(input, known, s.today())
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 && s.opts.RequireNonEmptyProposal {
		return nil, negotiation.ErrEmptyProposalSet
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.inTx(ctx, func(txRepo *repository.Repository) error {
		cr, err := s.loadForUpdate(ctx, txRepo, id)
		if err != nil {
			return err
		}
		event, role, parties, err := s.authorize(ctx, txRepo, cr, callerID)
		if err != nil {
			return err
		}
		if err := negotiation.RequirePending(negotiation.RequestStatus(cr.Status)); err != nil {
			return err
		}

		proposals := make([]model.AvailabilityProposal, 0, len(slots))
		for _, ds := range slots {
			ap := model.AvailabilityProposal{
				ChangeRequestID: id,
				UserID:          callerID,
				Day:             ds.Day,
				TimeSlotID:      ds.SlotID,
			}
			ap.CreatedBy = &callerID
			ap.UpdatedBy = &callerID
			proposals = append(proposals, ap)
		}
		if err := txRepo.Proposal.ReplaceForParty(ctx, id, callerID, proposals); err != nil {
			s.logger.Error("保存可用时间失败", zap.String("change_request_id", id), zap.String("user_id", callerID), zap.Error(err))
			return err
		}
		detail := fmt.Sprintf("提交 %d 个可用时间", len(slots))
		if err := s.appendLog(ctx, txRepo, cr, callerID, role, actionSubmit, cr.Status, nil, detail); err != nil {
			return err
		}

		recs, outcome, err := s.regenerate(ctx, txRepo, cr, event, parties, callerID, role)
		if err != nil {
			return err
		}
		resp = s.toState(cr, recs, role, outcome)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.ObserveResolution(negotiation.Outcome(resp.Outcome))
	return resp, nil
}

func (s *negotiationService) ListProposals(ctx context.Context, id, callerID, callerRole string) (*dto.ProposalSetResponse, error) {
	cr, err := s.loadRequest(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	_, _, parties, err := s.authorizeRead(ctx, s.repo, cr, callerID, callerRole)
	if err != nil {
		return nil, err
	}

	list, err := s.repo.Proposal.ListByRequest(ctx, id)
	if err != nil {
		s.logger.Error("查询可用时间失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, err
	}
	teacher, leader := splitProposals(list, parties)
	return &dto.ProposalSetResponse{
		ChangeRequestID: id,
		Teacher:         toDaySlotOutputs(teacher),
		Leader:          toDaySlotOutputs(leader),
		BothProposed:    len(teacher) > 0 && len(leader) > 0,
	}, nil
}

// ────────────────────── Recommendations ──────────────────────

func (s *negotiationService) GenerateRecommendations(ctx context.Context, id, callerID string) (resp *dto.NegotiationStateResponse, err error) {
	ctx, span := startSpan(ctx, "GenerateRecommendations", id)
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.inTx(ctx, func(txRepo *repository.Repository) error {
		cr, err := s.loadForUpdate(ctx, txRepo, id)
		if err != nil {
			return err
		}
		event, role, parties, err := s.authorize(ctx, txRepo, cr, callerID)
		if err != nil {
			return err
		}
		if err := negotiation.RequirePending(negotiation.RequestStatus(cr.Status)); err != nil {
			return err
		}

		recs, outcome, err := s.regenerate(ctx, txRepo, cr, event, parties, callerID, role)
		if err != nil {
			return err
		}
		resp = s.toState(cr, recs, role, outcome)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.ObserveResolution(negotiation.Outcome(resp.Outcome))
	return resp, nil
}

func (s *negotiationService) AcceptRecommendation(ctx context.Context, recommendationID, callerID string) (*dto.NegotiationStateResponse, error) {
	return s.decide(ctx, recommendationID, callerID, negotiation.DecisionAccept)
}

func (s *negotiationService) RejectRecommendation(ctx context.Context, recommendationID, callerID string) (*dto.NegotiationStateResponse, error) {
	return s.decide(ctx, recommendationID, callerID, negotiation.DecisionReject)
}

// decide 记录一方对推荐方案的决定，随后重新评估整个申请
func (s *negotiationService) decide(ctx context.Context, recommendationID, callerID string, d negotiation.Decision) (resp *dto.NegotiationStateResponse, err error) {
	ctx, span := startSpan(ctx, "Decide", recommendationID)
	span.SetAttributes(attribute.String("negotiation.decision", string(d)))
	defer func() { endSpan(span, err) }()

	rec, err := s.repo.Recommendation.GetByID(ctx, recommendationID)
	if err != nil {
		return nil, s.mapNotFound(err, ErrRecommendationNotFound, "查询推荐方案失败", zap.String("recommendation_id", recommendationID))
	}
	id := rec.ChangeRequestID

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		outcome     negotiation.Outcome
		unplaceable bool
	)
	err = s.inTx(ctx, func(txRepo *repository.Repository) error {
		cr, err := s.loadForUpdate(ctx, txRepo, id)
		if err != nil {
			return err
		}
		event, role, _, err := s.authorize(ctx, txRepo, cr, callerID)
		if err != nil {
			return err
		}
		if err := negotiation.RequirePending(negotiation.RequestStatus(cr.Status)); err != nil {
			return err
		}

		// 加锁后重新读取：等待期间方案可能已被重新生成
		rec, err := txRepo.Recommendation.GetByID(ctx, recommendationID)
		if err != nil {
			return s.mapNotFound(err, ErrRecommendationNotFound, "查询推荐方案失败", zap.String("recommendation_id", recommendationID))
		}
		flags, err := negotiation.Decide(flagsOf(rec), role, d)
		if err != nil {
			return err
		}
		applyFlags(rec, flags)
		rec.UpdatedBy = &callerID
		if err := txRepo.Recommendation.UpdateFlags(ctx, rec); err != nil {
			s.logger.Error("更新推荐方案失败", zap.String("recommendation_id", recommendationID), zap.Error(err))
			return err
		}
		s.opts.Metrics.ObserveDecision(role, d)

		action := actionAccept
		if d == negotiation.DecisionReject {
			action = actionReject
		}
		if err := s.appendLog(ctx, txRepo, cr, callerID, role, action, cr.Status, &rec.RecommendationID, ""); err != nil {
			return err
		}

		recs, err := txRepo.Recommendation.ListByRequest(ctx, id)
		if err != nil {
			s.logger.Error("查询推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
			return err
		}
		res := negotiation.Evaluate(toLedgerEntries(recs))
		outcome = res.Outcome

		switch res.Outcome {
		case negotiation.OutcomeCommitted:
			err := txRepo.Savepoint("commit_recommendation", func() error {
				return s.commit(ctx, txRepo, cr, event, recs, res.WinnerID, callerID, role)
			})
			if errors.Is(err, negotiation.ErrPlacementUnavailable) {
				// 复核未通过：作废该方案，其余方案继续协商
				unplaceable = true
				recs, outcome, err = s.dropUnplaceable(ctx, txRepo, cr, res.WinnerID, callerID, role)
				return err
			}
			if err != nil {
				return err
			}
			if recs, err = txRepo.Recommendation.ListByRequest(ctx, id); err != nil {
				return err
			}
		case negotiation.OutcomeExhausted:
			// 清空方案等待双方重新提交，返回的仍是清空前的最终标记
			if err := txRepo.Recommendation.ClearByRequest(ctx, id, callerID); err != nil {
				s.logger.Error("清空推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
				return err
			}
			if err := s.appendLog(ctx, txRepo, cr, callerID, role, actionExhausted, cr.Status, nil, ""); err != nil {
				return err
			}
		}

		resp = s.toState(cr, recs, role, outcome)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.opts.Metrics.ObserveResolution(outcome)
	if unplaceable {
		return nil, negotiation.ErrPlacementUnavailable
	}
	if outcome == negotiation.OutcomeCommitted {
		s.logger.Info("调课申请双方达成一致",
			zap.String("change_request_id", id),
			zap.String("recommendation_id", recommendationID),
		)
	}
	return resp, nil
}

// commit 复核胜出方案后写入课程台账并结束申请，须在事务内调用
func (s *negotiationService) commit(ctx context.Context, txRepo *repository.Repository, cr *model.ChangeRequest, event *model.CourseEvent, recs []model.Recommendation, winnerID, actorID string, role negotiation.Role) error {
	var winner *model.Recommendation
	for i := range recs {
		if recs[i].RecommendationID == winnerID {
			winner = &recs[i]
			break
		}
	}
	if winner == nil {
		return ErrRecommendationNotFound
	}

	placement := negotiation.Placement{
		DaySlot: negotiation.NewDaySlot(winner.Day, winner.TimeSlotID),
		RoomID:  winner.RoomID,
	}
	moves, err := s.matcher.Plan(ctx, toRequest(cr, event), placement)
	if err != nil {
		if errors.Is(err, negotiation.ErrPlacementUnavailable) {
			s.logger.Warn("推荐方案复核未通过",
				zap.String("change_request_id", cr.ChangeRequestID),
				zap.String("recommendation_id", winnerID),
			)
		}
		return err
	}

	if err := (eventLedger{repo: txRepo}).CommitReschedule(ctx, moves); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return negotiation.ErrPlacementUnavailable
		}
		s.logger.Error("写入课程台账失败", zap.String("change_request_id", cr.ChangeRequestID), zap.Error(err))
		return err
	}

	from := cr.Status
	if err := negotiation.Transition(negotiation.RequestStatus(from), negotiation.StatusAccepted); err != nil {
		return err
	}
	if err := s.resolve(ctx, txRepo, cr, negotiation.StatusAccepted, &winnerID, actorID); err != nil {
		return err
	}
	if err := txRepo.Recommendation.SupersedeOthers(ctx, cr.ChangeRequestID, winnerID, actorID); err != nil {
		s.logger.Error("标记推荐方案失效失败", zap.String("change_request_id", cr.ChangeRequestID), zap.Error(err))
		return err
	}
	if err := txRepo.Proposal.SoftDeleteByRequest(ctx, cr.ChangeRequestID, actorID); err != nil {
		s.logger.Error("作废可用时间失败", zap.String("change_request_id", cr.ChangeRequestID), zap.Error(err))
		return err
	}

	detail := fmt.Sprintf("改期至 %s 第 %d 节，共 %d 次课", placement.Day.Format(negotiation.DayLayout), placement.SlotID, len(moves))
	return s.appendLog(ctx, txRepo, cr, actorID, role, actionCommit, from, &winnerID, detail)
}

// dropUnplaceable 双方都已接受但复核未通过的方案标记为失效，并按剩余方案重新判定结果
// 没有剩余可决定的方案时与全部拒绝一样清空，等待双方重新提交
func (s *negotiationService) dropUnplaceable(ctx context.Context, txRepo *repository.Repository, cr *model.ChangeRequest, recID, actorID string, role negotiation.Role) ([]model.Recommendation, negotiation.Outcome, error) {
	id := cr.ChangeRequestID
	if err := txRepo.Recommendation.Supersede(ctx, recID, actorID); err != nil {
		s.logger.Error("标记推荐方案失效失败", zap.String("recommendation_id", recID), zap.Error(err))
		return nil, "", err
	}
	if err := s.appendLog(ctx, txRepo, cr, actorID, role, actionUnavailable, cr.Status, &recID, ""); err != nil {
		return nil, "", err
	}

	recs, err := txRepo.Recommendation.ListByRequest(ctx, id)
	if err != nil {
		s.logger.Error("查询推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, "", err
	}
	live := 0
	for i := range recs {
		if !recs[i].Superseded {
			live++
		}
	}
	res := negotiation.Evaluate(toLedgerEntries(recs))
	if live > 0 && res.Outcome != negotiation.OutcomeExhausted {
		return recs, negotiation.OutcomeOpen, nil
	}

	if err := txRepo.Recommendation.ClearByRequest(ctx, id, actorID); err != nil {
		s.logger.Error("清空推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, "", err
	}
	if err := s.appendLog(ctx, txRepo, cr, actorID, role, actionExhausted, cr.Status, nil, ""); err != nil {
		return nil, "", err
	}
	return recs, negotiation.OutcomeExhausted, nil
}

// regenerate 作废当前方案并按双方可用时间重新匹配，须在事务内调用
func (s *negotiationService) regenerate(ctx context.Context, txRepo *repository.Repository, cr *model.ChangeRequest, event *model.CourseEvent, parties negotiation.Parties, actorID string, role negotiation.Role) ([]model.Recommendation, negotiation.Outcome, error) {
	id := cr.ChangeRequestID
	if err := txRepo.Recommendation.ClearByRequest(ctx, id, actorID); err != nil {
		s.logger.Error("清空推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, "", err
	}

	list, err := txRepo.Proposal.ListByRequest(ctx, id)
	if err != nil {
		s.logger.Error("查询可用时间失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, "", err
	}
	teacher, leader := splitProposals(list, parties)
	if len(teacher) == 0 || len(leader) == 0 {
		return nil, negotiation.OutcomeAwaitingProposals, nil
	}

	placements, err := s.matcher.Generate(ctx, toRequest(cr, event), teacher, leader)
	if err != nil {
		s.logger.Warn("生成推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, "", err
	}

	recs := make([]model.Recommendation, 0, len(placements))
	for _, p := range placements {
		rec := model.Recommendation{
			ChangeRequestID: id,
			Day:             p.Day,
			TimeSlotID:      p.SlotID,
			RoomID:          p.RoomID,
		}
		rec.CreatedBy = &actorID
		rec.UpdatedBy = &actorID
		recs = append(recs, rec)
	}
	if err := txRepo.Recommendation.CreateBatch(ctx, recs); err != nil {
		s.logger.Error("保存推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, "", err
	}
	detail := fmt.Sprintf("共同可用 %d 个时间段，生成 %d 个推荐方案", len(negotiation.Intersect(teacher, leader)), len(recs))
	if err := s.appendLog(ctx, txRepo, cr, actorID, role, actionGenerate, cr.Status, nil, detail); err != nil {
		return nil, "", err
	}

	if len(recs) == 0 {
		return nil, negotiation.OutcomeNoEligibleMatch, nil
	}
	created, err := txRepo.Recommendation.ListByRequest(ctx, id)
	if err != nil {
		s.logger.Error("查询推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
		return nil, "", err
	}
	return created, negotiation.OutcomeOpen, nil
}

// ────────────────────── 内部辅助 ──────────────────────

// lock 获取调课申请级写锁：先进程内互斥，配置了 Redis 时再取分布式租约
func (s *negotiationService) lock(ctx context.Context, id string) (func(), error) {
	started := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	defer cancel()
	unlock, err := s.keys.Lock(waitCtx, id)
	if err != nil {
		s.logger.Warn("等待调课申请锁超时", zap.String("change_request_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", negotiation.ErrDependencyUnavailable, pkgerrors.ErrLockTimeout)
	}

	if s.opts.Locker != nil {
		release, err := s.opts.Locker.Acquire(ctx, id)
		if err != nil {
			unlock()
			s.logger.Warn("获取分布式锁失败", zap.String("change_request_id", id), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", negotiation.ErrDependencyUnavailable, err)
		}
		local := unlock
		unlock = func() {
			release()
			local()
		}
	}

	s.opts.Metrics.ObserveLockWait(time.Since(started))
	return unlock, nil
}

// inTx 在事务中执行 fn；未连接数据库时直接执行
func (s *negotiationService) inTx(ctx context.Context, fn func(txRepo *repository.Repository) error) (err error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启事务失败", zap.Error(err))
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(r)
		}
	}()

	if err := fn(s.repo.WithTx(tx)); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return err
	}

	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			s.logger.Error("提交事务失败", zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *negotiationService) loadRequest(ctx context.Context, repo *repository.Repository, id string) (*model.ChangeRequest, error) {
	cr, err := repo.ChangeRequest.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapNotFound(err, ErrChangeRequestNotFound, "查询调课申请失败", zap.String("change_request_id", id))
	}
	return cr, nil
}

func (s *negotiationService) loadForUpdate(ctx context.Context, txRepo *repository.Repository, id string) (*model.ChangeRequest, error) {
	cr, err := txRepo.ChangeRequest.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, s.mapNotFound(err, ErrChangeRequestNotFound, "锁定调课申请失败", zap.String("change_request_id", id))
	}
	return cr, nil
}

func (s *negotiationService) loadEvent(ctx context.Context, repo *repository.Repository, eventID string) (*model.CourseEvent, negotiation.Parties, error) {
	event, err := loadEventWithCourse(ctx, repo, eventID)
	if err != nil {
		return nil, negotiation.Parties{}, s.mapNotFound(err, ErrCourseEventNotFound, "查询课程事件失败", zap.String("event_id", eventID))
	}
	return event, partiesOf(event), nil
}

// authorize 按课程归属解析调用者角色，非参与方返回 ErrNotParty
func (s *negotiationService) authorize(ctx context.Context, repo *repository.Repository, cr *model.ChangeRequest, callerID string) (*model.CourseEvent, negotiation.Role, negotiation.Parties, error) {
	event, parties, err := s.loadEvent(ctx, repo, cr.CourseEventID)
	if err != nil {
		return nil, "", parties, err
	}
	role, err := negotiation.ResolveRole(parties, callerID)
	if err != nil {
		return nil, "", parties, err
	}
	cr.CourseEvent = event
	return event, role, parties, nil
}

// authorizeRead 只读访问：管理员与教务无需是参与方，返回的角色为空
func (s *negotiationService) authorizeRead(ctx context.Context, repo *repository.Repository, cr *model.ChangeRequest, callerID, callerRole string) (*model.CourseEvent, negotiation.Role, negotiation.Parties, error) {
	if !privilegedRole(callerRole) {
		return s.authorize(ctx, repo, cr, callerID)
	}
	event, parties, err := s.loadEvent(ctx, repo, cr.CourseEventID)
	if err != nil {
		return nil, "", parties, err
	}
	cr.CourseEvent = event
	// 本人也是参与方时仍返回其角色
	role, _ := negotiation.ResolveRole(parties, callerID)
	return event, role, parties, nil
}

// resolve 写入终态
func (s *negotiationService) resolve(ctx context.Context, txRepo *repository.Repository, cr *model.ChangeRequest, to negotiation.RequestStatus, winnerID *string, actorID string) error {
	now := s.now().UTC()
	cr.Status = string(to)
	cr.AcceptedRecommendationID = winnerID
	cr.ResolvedBy = &actorID
	cr.ResolvedAt = &now
	cr.UpdatedBy = &actorID
	if err := txRepo.ChangeRequest.Update(ctx, cr); err != nil {
		s.logger.Error("更新调课申请状态失败",
			zap.String("change_request_id", cr.ChangeRequestID),
			zap.String("status", string(to)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *negotiationService) clearNegotiation(ctx context.Context, txRepo *repository.Repository, id, actorID string) error {
	if err := txRepo.Recommendation.ClearByRequest(ctx, id, actorID); err != nil {
		s.logger.Error("清空推荐方案失败", zap.String("change_request_id", id), zap.Error(err))
		return err
	}
	if err := txRepo.Proposal.SoftDeleteByRequest(ctx, id, actorID); err != nil {
		s.logger.Error("作废可用时间失败", zap.String("change_request_id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *negotiationService) appendLog(ctx context.Context, repo *repository.Repository, cr *model.ChangeRequest, actorID string, role negotiation.Role, action, fromStatus string, recommendationID *string, detail string) error {
	entry := &model.ChangeRequestLog{
		ChangeRequestID:  cr.ChangeRequestID,
		ActorID:          actorID,
		Role:             string(role),
		Action:           action,
		FromStatus:       fromStatus,
		ToStatus:         cr.Status,
		RecommendationID: recommendationID,
		Detail:           detail,
		CreatedAt:        s.now().UTC(),
	}
	if err := repo.ChangeRequestLog.Create(ctx, entry); err != nil {
		s.logger.Error("写入调课申请日志失败",
			zap.String("change_request_id", cr.ChangeRequestID),
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// deriveOutcome 读取时根据状态、方案与日志还原当前结果
func (s *negotiationService) deriveOutcome(ctx context.Context, repo *repository.Repository, cr *model.ChangeRequest, parties negotiation.Parties, recs []model.Recommendation) (negotiation.Outcome, error) {
	switch negotiation.RequestStatus(cr.Status) {
	case negotiation.StatusAccepted:
		return negotiation.OutcomeCommitted, nil
	case negotiation.StatusRejected:
		return negotiation.OutcomeRejected, nil
	case negotiation.StatusCancelled:
		return negotiation.OutcomeCancelled, nil
	}
	if len(recs) > 0 {
		return negotiation.Evaluate(toLedgerEntries(recs)).Outcome, nil
	}

	list, err := repo.Proposal.ListByRequest(ctx, cr.ChangeRequestID)
	if err != nil {
		s.logger.Error("查询可用时间失败", zap.String("change_request_id", cr.ChangeRequestID), zap.Error(err))
		return "", err
	}
	teacher, leader := splitProposals(list, parties)
	if len(teacher) == 0 || len(leader) == 0 {
		return negotiation.OutcomeAwaitingProposals, nil
	}

	last, err := repo.ChangeRequestLog.Latest(ctx, cr.ChangeRequestID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询调课申请日志失败", zap.String("change_request_id", cr.ChangeRequestID), zap.Error(err))
		return "", err
	}
	if last != nil && last.Action == actionExhausted {
		return negotiation.OutcomeExhausted, nil
	}
	return negotiation.OutcomeNoEligibleMatch, nil
}

func (s *negotiationService) timeSlots(ctx context.Context) (map[int]negotiation.TimeSlot, error) {
	var slots []negotiation.TimeSlot
	err := negotiation.CallDependency(ctx, s.opts.DependencyTimeout, func(ctx context.Context) error {
		var err error
		slots, err = timeSlotSource{repo: s.repo}.ListTimeSlots(ctx)
		return err
	})
	if err != nil {
		s.logger.Warn("读取时间段配置失败", zap.Error(err))
		return nil, err
	}
	return negotiation.TimeSlotIndex(slots), nil
}

// today 协商时区下的当天日期
func (s *negotiationService) today() time.Time {
	return negotiation.DateOf(s.now().In(s.opts.Location))
}

func (s *negotiationService) mapNotFound(err, notFound error, msg string, fields ...zap.Field) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	s.logger.Error(msg, append(fields, zap.Error(err))...)
	return err
}

func startSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "negotiation."+op, trace.WithAttributes(attribute.String("negotiation.id", id)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ────────────────────── 转换 ──────────────────────

func toRequest(cr *model.ChangeRequest, event *model.CourseEvent) negotiation.Request {
	return negotiation.Request{
		ID:                cr.ChangeRequestID,
		Anchor:            toNegotiationEvent(event),
		MinCapacity:       cr.MinCapacity,
		RequiredEquipment: []string(cr.RequiredEquipment),
		Cyclical:          cr.Cyclical,
		StartDate:         cr.StartDate,
		EndDate:           cr.EndDate,
	}
}

func splitProposals(list []model.AvailabilityProposal, p negotiation.Parties) (teacher, leader []negotiation.DaySlot) {
	for _, ap := range list {
		ds := negotiation.NewDaySlot(ap.Day, ap.TimeSlotID)
		switch ap.UserID {
		case p.TeacherID:
			teacher = append(teacher, ds)
		case p.LeaderID:
			leader = append(leader, ds)
		}
	}
	negotiation.SortDaySlots(teacher)
	negotiation.SortDaySlots(leader)
	return teacher, leader
}

func flagsOf(r *model.Recommendation) negotiation.Flags {
	return negotiation.Flags{
		AcceptedByTeacher: r.AcceptedByTeacher,
		AcceptedByLeader:  r.AcceptedByLeader,
		RejectedByTeacher: r.RejectedByTeacher,
		RejectedByLeader:  r.RejectedByLeader,
		Superseded:        r.Superseded,
	}
}

func applyFlags(r *model.Recommendation, f negotiation.Flags) {
	r.AcceptedByTeacher = f.AcceptedByTeacher
	r.AcceptedByLeader = f.AcceptedByLeader
	r.RejectedByTeacher = f.RejectedByTeacher
	r.RejectedByLeader = f.RejectedByLeader
}

func toLedgerEntries(recs []model.Recommendation) []negotiation.LedgerEntry {
	out := make([]negotiation.LedgerEntry, 0, len(recs))
	for i := range recs {
		out = append(out, negotiation.LedgerEntry{ID: recs[i].RecommendationID, Flags: flagsOf(&recs[i])})
	}
	return out
}

func (s *negotiationService) toState(cr *model.ChangeRequest, recs []model.Recommendation, role negotiation.Role, outcome negotiation.Outcome) *dto.NegotiationStateResponse {
	items := make([]dto.RecommendationResponse, 0, len(recs))
	for i := range recs {
		items = append(items, toRecommendationResponse(&recs[i]))
	}
	return &dto.NegotiationStateResponse{
		ChangeRequest:   toChangeRequestResponse(cr),
		Recommendations: items,
		Outcome:         string(outcome),
		Role:            string(role),
		BothProposed:    bothProposed(outcome),
	}
}

func toChangeRequestResponse(cr *model.ChangeRequest) dto.ChangeRequestResponse {
	resp := dto.ChangeRequestResponse{
		ID:                       cr.ChangeRequestID,
		CourseEventID:            cr.CourseEventID,
		InitiatorID:              cr.InitiatorID,
		Reason:                   cr.Reason,
		MinCapacity:              cr.MinCapacity,
		RequiredEquipment:        []string(cr.RequiredEquipment),
		Cyclical:                 cr.Cyclical,
		StartDate:                formatOptionalDay(cr.StartDate),
		EndDate:                  formatOptionalDay(cr.EndDate),
		Status:                   cr.Status,
		AcceptedRecommendationID: cr.AcceptedRecommendationID,
		ResolvedBy:               cr.ResolvedBy,
		CreatedAt:                cr.CreatedAt.Format(time.RFC3339),
		UpdatedAt:                cr.UpdatedAt.Format(time.RFC3339),
	}
	if resp.RequiredEquipment == nil {
		resp.RequiredEquipment = []string{}
	}
	if cr.ResolvedAt != nil {
		v := cr.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &v
	}
	if e := cr.CourseEvent; e != nil {
		brief := &dto.CourseEventBrief{
			ID:         e.EventID,
			CourseID:   e.CourseID,
			RoomID:     e.RoomID,
			Day:        e.Day.Format(negotiation.DayLayout),
			TimeSlotID: e.TimeSlotID,
		}
		if e.Course != nil {
			brief.CourseName = e.Course.Name
		}
		resp.CourseEvent = brief
	}
	return resp
}

func toRecommendationResponse(r *model.Recommendation) dto.RecommendationResponse {
	resp := dto.RecommendationResponse{
		ID:                r.RecommendationID,
		ChangeRequestID:   r.ChangeRequestID,
		Day:               r.Day.Format(negotiation.DayLayout),
		TimeSlotID:        r.TimeSlotID,
		RoomID:            r.RoomID,
		AcceptedByTeacher: r.AcceptedByTeacher,
		AcceptedByLeader:  r.AcceptedByLeader,
		RejectedByTeacher: r.RejectedByTeacher,
		RejectedByLeader:  r.RejectedByLeader,
		Superseded:        r.Superseded,
	}
	if r.Room != nil {
		resp.Room = &dto.RoomBrief{ID: r.Room.RoomID, Name: r.Room.Name, Capacity: r.Room.Capacity}
	}
	return resp
}

func toLogResponse(l *model.ChangeRequestLog) dto.ChangeRequestLogResponse {
	return dto.ChangeRequestLogResponse{
		ID:               l.LogID,
		ActorID:          l.ActorID,
		Role:             l.Role,
		Action:           l.Action,
		FromStatus:       l.FromStatus,
		ToStatus:         l.ToStatus,
		RecommendationID: l.RecommendationID,
		Detail:           l.Detail,
		CreatedAt:        l.CreatedAt.Format(time.RFC3339),
	}
}

func toDaySlotOutputs(in []negotiation.DaySlot) []dto.DaySlotOutput {
	out := make([]dto.DaySlotOutput, 0, len(in))
	for _, ds := range in {
		out = append(out, dto.DaySlotOutput{Day: ds.Day.Format(negotiation.DayLayout), TimeSlotID: ds.SlotID})
	}
	return out
}

func parseOptionalDay(field string, v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := negotiation.ParseDay(*v)
	if err != nil {
		return nil, &negotiation.ValidationError{Field: field, Reason: "日期格式应为 YYYY-MM-DD"}
	}
	return &t, nil
}

func formatOptionalDay(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format(negotiation.DayLayout)
	return &v
}

// normalizeEquipment 去除空白与重复项并排序
func normalizeEquipment(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func actionReason(req *dto.ChangeRequestActionRequest) string {
	if req == nil {
		return ""
	}
	return strings.TrimSpace(req.Reason)
}

// bothProposed 仅在申请进行中且已进入匹配阶段时为 true；终态下可用时间已作废
func bothProposed(o negotiation.Outcome) bool {
	switch o {
	case negotiation.OutcomeOpen, negotiation.OutcomeNoEligibleMatch, negotiation.OutcomeExhausted:
		return true
	}
	return false
}

func privilegedRole(role string) bool {
	return role == "admin" || role == "coordinator"
}
