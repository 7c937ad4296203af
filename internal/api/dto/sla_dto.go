package dto

import (
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/service"
	"github.com/spec-kit/servicedesk-sla/internal/sla"
)

// TimerResponse is the list view of a timer. Durations are H:M:S.
type TimerResponse struct {
	ID              int64            `json:"id"`
	TicketID        string           `json:"ticket_id"`
	Status          domain.SLAStatus `json:"status"`
	StartTime       *time.Time       `json:"start_time"`
	PausedTime      *time.Time       `json:"paused_time"`
	ResumedTime     *time.Time       `json:"resumed_time"`
	EndTime         *time.Time       `json:"end_time"`
	TotalPausedTime string           `json:"total_paused_time"`
	SLADueDate      *time.Time       `json:"sla_due_date"`
	Breached        bool             `json:"breached"`
	WarningSent     bool             `json:"warning_sent"`
	BreachNotified  bool             `json:"breach_notified"`
}

// PauseIntervalResponse is one pause of a timer.
type PauseIntervalResponse struct {
	PausedAt  *time.Time `json:"paused_time"`
	ResumedAt *time.Time `json:"resumed_time"`
	Duration  string     `json:"pause_duration"`
}

// TimerDetailResponse adds remaining time and the pause log.
type TimerDetailResponse struct {
	TimerResponse
	SLADueDateLocal *time.Time              `json:"sla_due_date_local"`
	Timezone        string                  `json:"timezone"`
	RemainingTime   *string                 `json:"remaining_time"`
	PausedFor       *string                 `json:"paused_for"`
	Pauses          []PauseIntervalResponse `json:"pauses"`
}

// DashboardResponse is the organisation-wide SLA summary.
type DashboardResponse struct {
	AvgSolveTime     string                      `json:"avg_solve_time"`
	AvgPausedTime    string                      `json:"avg_paused_time"`
	AvgWorkingTime   string                      `json:"avg_working_time"`
	ProcessedTickets int                         `json:"processed_tickets"`
	TotalTickets     int                         `json:"total_tickets"`
	ByStatus         map[domain.TicketStatus]int `json:"by_status"`
}

// NewTimerResponse maps a timer with the paused total to show.
func NewTimerResponse(t domain.SLATimer, paused time.Duration) TimerResponse {
	return TimerResponse{
		ID:              t.ID,
		TicketID:        t.TicketID,
		Status:          t.Status,
		StartTime:       t.StartTime,
		PausedTime:      t.PausedTime,
		ResumedTime:     t.ResumedTime,
		EndTime:         t.EndTime,
		TotalPausedTime: sla.FormatHMS(paused),
		SLADueDate:      t.SLADueDate,
		Breached:        t.Breached,
		WarningSent:     t.WarningSent,
		BreachNotified:  t.BreachNotified,
	}
}

// NewTimerDetailResponse maps a timer report.
func NewTimerDetailResponse(r *service.TimerReport) TimerDetailResponse {
	resp := TimerDetailResponse{
		TimerResponse:   NewTimerResponse(r.Timer, r.TotalPaused),
		SLADueDateLocal: r.DueDateLocal,
		Timezone:        r.Zone.String(),
		RemainingTime:   hmsPtr(r.Remaining),
		PausedFor:       hmsPtr(r.PausedFor),
		Pauses:          make([]PauseIntervalResponse, 0, len(r.Intervals)),
	}
	for _, interval := range r.Intervals {
		resp.Pauses = append(resp.Pauses, PauseIntervalResponse{
			PausedAt:  interval.PausedAt,
			ResumedAt: interval.ResumedAt,
			Duration:  sla.FormatHMS(interval.Duration),
		})
	}
	return resp
}

// NewDashboardResponse maps dashboard figures.
func NewDashboardResponse(d *service.Dashboard) DashboardResponse {
	return DashboardResponse{
		AvgSolveTime:     sla.FormatHMS(d.AvgSolveTime),
		AvgPausedTime:    sla.FormatHMS(d.AvgPausedTime),
		AvgWorkingTime:   sla.FormatHMS(d.AvgWorkingTime),
		ProcessedTickets: d.ProcessedTickets,
		TotalTickets:     d.TotalTickets,
		ByStatus:         d.ByStatus,
	}
}

func hmsPtr(d *time.Duration) *string {
	if d == nil {
		return nil
	}
	s := sla.FormatHMS(*d)
	return &s
}
