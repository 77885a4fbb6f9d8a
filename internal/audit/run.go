package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CyberHygiene/internal/mailer"
	"CyberHygiene/internal/model"
)

var (
	ErrNoRenderer   = errors.New("未配置报告渲染器")
	ErrRunCancelled = errors.New("运行已取消")
)

// Outcome 一次运行的最终结果
type Outcome struct {
	RunID      string
	Report     *model.AuditReport
	ReportPath string
	State      model.RunState
	History    []model.RunState
	Err        error
}

// Run 扫描, 汇总, 生成报告, 投递
// msg 为 nil 或 ctx 已取消时运行在 Rendered 结束; 报告生成失败时不投递
func (e *Engine) Run(ctx context.Context, req Request, msg *mailer.Message) Outcome {
	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID)
	tracker := model.NewRunTracker()

	out := Outcome{RunID: runID}
	finish := func(err error) Outcome {
		out.State = tracker.State()
		out.History = tracker.History()
		out.Err = err
		if err != nil {
			logger.Error("运行在 %s 阶段结束: %v", out.State, err)
		}
		return out
	}
	advance := func(next model.RunState) error {
		if err := tracker.Advance(next); err != nil {
			return err
		}
		logger.Debug("状态 -> %s", next)
		return nil
	}

	if err := advance(model.StateScanning); err != nil {
		return finish(err)
	}
	start := time.Now()
	logger.Info("开始审计 %s", req.Host)

	report := e.aggregate(ctx, req, logger)
	out.Report = report
	if err := advance(model.StateAggregated); err != nil {
		return finish(err)
	}

	if e.c.Renderer == nil {
		return finish(ErrNoRenderer)
	}
	path, err := e.c.Renderer.Render(report)
	if err != nil {
		return finish(fmt.Errorf("生成报告失败: %w", err))
	}
	report.ReportPath = path
	out.ReportPath = path
	if err := advance(model.StateRendered); err != nil {
		return finish(err)
	}
	if e.metrics != nil {
		e.metrics.AuditDuration.Observe(time.Since(start).Seconds())
	}
	logger.Info("报告已生成: %s, 说明 %d 条", path, len(report.Notes))

	if msg == nil {
		return finish(nil)
	}

	// 已中断的运行保留报告, 但不投递
	if err := ctx.Err(); err != nil {
		return finish(fmt.Errorf("%w, 跳过投递: %w", ErrRunCancelled, err))
	}

	if err := advance(model.StateDispatching); err != nil {
		return finish(err)
	}
	delivery := *msg
	delivery.AttachmentPath = path
	if delivery.Subject == "" {
		delivery.Subject = mailer.DefaultSubject(req.Host)
	}
	if delivery.Body == "" {
		delivery.Body = mailer.DefaultBody
	}

	var dispatchErr error
	if e.c.Dispatcher == nil {
		dispatchErr = errors.New("未配置邮件投递")
	} else {
		dispatchErr = e.c.Dispatcher.Dispatch(ctx, delivery)
	}
	if dispatchErr != nil {
		if err := advance(model.StateDeliveryFailed); err != nil {
			return finish(err)
		}
		return finish(dispatchErr)
	}

	if err := advance(model.StateDelivered); err != nil {
		return finish(err)
	}
	logger.Info("报告已投递给 %s", delivery.To)
	return finish(nil)
}
