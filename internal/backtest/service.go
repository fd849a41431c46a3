package backtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kawase/internal/analysis/indicator"
	"kawase/internal/logger"
	"kawase/internal/market"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// RunParams 描述一次回测任务的请求参数。
type RunParams struct {
	Symbol   string             `json:"symbol"`
	Interval string             `json:"interval"`
	Limit    int                `json:"limit"`
	Analysis indicator.Settings `json:"analysis"`
	Trading  Settings           `json:"trading"`
}

// RunJob 在内存中跟踪一次回测的进度与结果。
type RunJob struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Params    RunParams `json:"params"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Message   string    `json:"message"`
	Result    *Result   `json:"result,omitempty"`
}

func (j *RunJob) copy() RunJob {
	if j == nil {
		return RunJob{}
	}
	out := *j
	if j.Result != nil {
		r := *j.Result
		r.Trades = append([]Trade{}, j.Result.Trades...)
		out.Result = &r
	}
	return out
}

// Service 负责提交回测任务并维护任务快照。
// 任务在后台 goroutine 中执行，HTTP 层通过 JobSnapshot 轮询进度。
type Service struct {
	source market.Source

	mu   sync.Mutex
	jobs map[string]*RunJob
}

func NewService(source market.Source) (*Service, error) {
	if source == nil {
		return nil, errors.New("market source 不能为空")
	}
	return &Service{source: source, jobs: make(map[string]*RunJob)}, nil
}

// SubmitRun 校验参数并异步启动回测，立即返回任务快照。
func (s *Service) SubmitRun(ctx context.Context, params RunParams) (RunJob, error) {
	if params.Symbol == "" || params.Interval == "" {
		return RunJob{}, errors.New("symbol/interval 必填")
	}
	if params.Limit <= 0 {
		params.Limit = 500
	}
	params.Analysis = params.Analysis.WithDefaults()
	params.Trading = params.Trading.WithDefaults()

	now := time.Now()
	job := &RunJob{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		Params:    params,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go s.execute(ctx, job.ID, params)
	return job.copy(), nil
}

func (s *Service) execute(ctx context.Context, id string, params RunParams) {
	s.update(id, func(j *RunJob) { j.Status = JobStatusRunning })

	candles, err := s.source.FetchHistory(ctx, params.Symbol, params.Interval, params.Limit)
	if err != nil {
		logger.Errorf("回测任务 %s 拉取行情失败: %v", id, err)
		s.fail(id, err)
		return
	}
	report, err := indicator.Analyze(candles, params.Analysis)
	if err != nil {
		s.fail(id, err)
		return
	}
	result, err := Run(candles, report.Divergences, params.Trading, PipSize(params.Symbol))
	if err != nil {
		s.fail(id, err)
		return
	}

	logger.Infof("回测任务 %s 完成: %d 笔交易, 胜率 %.1f%%", id, result.TotalTrades, result.WinRate)
	s.update(id, func(j *RunJob) {
		j.Status = JobStatusDone
		j.Result = &result
	})
}

func (s *Service) fail(id string, err error) {
	s.update(id, func(j *RunJob) {
		j.Status = JobStatusFailed
		j.Message = err.Error()
	})
}

func (s *Service) update(id string, fn func(*RunJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(j)
		j.UpdatedAt = time.Now()
	}
}

// JobSnapshot 返回指定任务的副本。
func (s *Service) JobSnapshot(id string) (RunJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return RunJob{}, false
	}
	return j.copy(), true
}

// JobsSnapshot 返回全部任务副本，按提交时间倒序。
func (s *Service) JobsSnapshot() []RunJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.copy())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}
