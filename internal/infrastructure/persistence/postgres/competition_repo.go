package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/schedule"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPETITION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CompetitionRepository implements competition.Repository on PostgreSQL.
type CompetitionRepository struct {
	conn    *Connection
	reducer *competition.SubmissionReducer
}

var _ competition.Repository = (*CompetitionRepository)(nil)

// NewCompetitionRepository creates a new repository.
func NewCompetitionRepository(conn *Connection) *CompetitionRepository {
	return &CompetitionRepository{
		conn:    conn,
		reducer: competition.NewSubmissionReducer(),
	}
}

// Ping reports database availability.
func (r *CompetitionRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Participants
// ─────────────────────────────────────────────────────────────────────────────

const participantColumns = `scope_id, id, display_name, cumulative_steps, created_at, updated_at`

func (r *CompetitionRepository) GetParticipant(ctx context.Context, scope shared.ScopeID, id string) (*competition.Participant, error) {
	var p *competition.Participant
	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE scope_id = $1 AND id = $2`, scope, id)
		found, err := scanParticipant(row)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrParticipantNotFound
			}
			return fmt.Errorf("get participant: %w", err)
		}

		history, err := r.history(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		found.History = history
		p = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *CompetitionRepository) ListParticipants(ctx context.Context, scope shared.ScopeID) ([]*competition.Participant, error) {
	var out []*competition.Participant
	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+participantColumns+` FROM participants WHERE scope_id = $1 ORDER BY id`, scope)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		participants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*competition.Participant, error) {
			return scanParticipant(row)
		})
		if err != nil {
			return fmt.Errorf("scan participants: %w", err)
		}

		byID := make(map[string]*competition.Participant, len(participants))
		for _, p := range participants {
			byID[p.ID] = p
		}

		subs, err := tx.Query(ctx, `
			SELECT participant_id, id, submitted_at, step_count, source
			FROM submissions
			WHERE scope_id = $1
			ORDER BY participant_id, submitted_at, id`, scope)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		defer subs.Close()

		for subs.Next() {
			var (
				participantID string
				rec           competition.SubmissionRecord
				source        string
			)
			if err := subs.Scan(&participantID, &rec.ID, &rec.Timestamp, &rec.StepCount, &source); err != nil {
				return fmt.Errorf("scan submission: %w", err)
			}
			rec.Timestamp = rec.Timestamp.UTC()
			rec.Source = competition.Source(source)
			if p, ok := byID[participantID]; ok {
				p.History = append(p.History, rec)
			}
		}
		if err := subs.Err(); err != nil {
			return err
		}

		out = participants
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CompetitionRepository) EnsureParticipant(ctx context.Context, p *competition.Participant) error {
	q, err := r.conn.Querier()
	if err != nil {
		return err
	}
	return ensureParticipant(ctx, q, p)
}

func ensureParticipant(ctx context.Context, q Querier, p *competition.Participant) error {
	_, err := q.Exec(ctx, `
		INSERT INTO participants (scope_id, id, display_name, cumulative_steps, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
		ON CONFLICT (scope_id, id) DO NOTHING`,
		p.ScopeID, p.ID, p.DisplayName, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ensure participant: %w", err)
	}
	return nil
}

func (r *CompetitionRepository) history(ctx context.Context, q Querier, scope shared.ScopeID, participantID string) ([]competition.SubmissionRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT id, submitted_at, step_count, source
		FROM submissions
		WHERE scope_id = $1 AND participant_id = $2
		ORDER BY submitted_at, id`, scope, participantID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanSubmission)
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return records, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Submissions
// ─────────────────────────────────────────────────────────────────────────────

// AppendOrReplaceSubmission locks the participant row for the duration of the
// transaction, so two writers for the same participant are serialized and a
// window never ends up with two records. A lock wait beyond LockTimeout, a
// deadlock or a lost insert race surfaces as shared.ErrSubmissionConflict.
func (r *CompetitionRepository) AppendOrReplaceSubmission(
	ctx context.Context,
	scope shared.ScopeID,
	participantID string,
	window competition.Window,
	in competition.SubmissionInput,
) (*competition.SubmissionOutcome, error) {
	created, err := competition.NewParticipant(scope, participantID, in.DisplayName, in.SubmittedAt)
	if err != nil {
		return nil, err
	}

	var outcome *competition.SubmissionOutcome
	err = r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if timeout := r.conn.config.LockTimeout; timeout > 0 {
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}

		if err := ensureParticipant(ctx, tx, created); err != nil {
			return err
		}

		var locked string
		if err := tx.QueryRow(ctx,
			`SELECT id FROM participants WHERE scope_id = $1 AND id = $2 FOR UPDATE`,
			scope, participantID,
		).Scan(&locked); err != nil {
			return fmt.Errorf("lock participant: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT id, submitted_at, step_count, source
			FROM submissions
			WHERE scope_id = $1 AND participant_id = $2 AND submitted_at >= $3 AND submitted_at < $4`,
			scope, participantID, window.Start, window.End)
		if err != nil {
			return fmt.Errorf("query window: %w", err)
		}
		inWindow, err := pgx.CollectRows(rows, scanSubmission)
		if err != nil {
			return fmt.Errorf("scan window: %w", err)
		}

		incoming := competition.SubmissionRecord{
			ID:        in.ID,
			Timestamp: in.SubmittedAt.UTC(),
			StepCount: in.StepCount,
			Source:    in.Source,
		}
		res := r.reducer.UpsertForWindow(inWindow, window, incoming)
		stored, _ := r.reducer.Latest(res.History, window)

		prev := 0
		if res.Replaced {
			prev = *res.PreviousValue
			_, err = tx.Exec(ctx, `
				UPDATE submissions SET step_count = $2, submitted_at = $3, source = $4
				WHERE id = $1`,
				stored.ID, stored.StepCount, stored.Timestamp, string(stored.Source))
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO submissions (id, scope_id, participant_id, step_count, source, submitted_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				stored.ID, scope, participantID, stored.StepCount, string(stored.Source), stored.Timestamp)
		}
		if err != nil {
			return fmt.Errorf("write submission: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE participants
			SET cumulative_steps = GREATEST(cumulative_steps + $3, 0), updated_at = $4
			WHERE scope_id = $1 AND id = $2`,
			scope, participantID, in.StepCount-prev, in.SubmittedAt,
		); err != nil {
			return fmt.Errorf("update cumulative: %w", err)
		}

		outcome = &competition.SubmissionOutcome{
			Record:        stored,
			Replaced:      res.Replaced,
			PreviousValue: res.PreviousValue,
		}
		return nil
	})
	if err != nil {
		return nil, asConflict(err)
	}
	return outcome, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

const configColumns = `scope_id, posting_channel_ref, anchor_start_date,
	schedule_enabled, schedule_day_of_week, schedule_hour, schedule_minute,
	schedule_interval_weeks, schedule_interval_mode, created_at, updated_at`

func (r *CompetitionRepository) GetCompetitionConfig(ctx context.Context, scope shared.ScopeID) (*competition.CompetitionConfig, error) {
	q, err := r.conn.Querier()
	if err != nil {
		return nil, err
	}
	cfg, err := scanConfig(q.QueryRow(ctx, `SELECT `+configColumns+` FROM competition_configs WHERE scope_id = $1`, scope))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("get config: %w", err)
	}
	return cfg, nil
}

func (r *CompetitionRepository) SaveCompetitionConfig(ctx context.Context, cfg *competition.CompetitionConfig) error {
	q, err := r.conn.Querier()
	if err != nil {
		return err
	}
	s := cfg.Schedule
	_, err = q.Exec(ctx, `
		INSERT INTO competition_configs (`+configColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (scope_id) DO UPDATE SET
			posting_channel_ref = EXCLUDED.posting_channel_ref,
			anchor_start_date = EXCLUDED.anchor_start_date,
			schedule_enabled = EXCLUDED.schedule_enabled,
			schedule_day_of_week = EXCLUDED.schedule_day_of_week,
			schedule_hour = EXCLUDED.schedule_hour,
			schedule_minute = EXCLUDED.schedule_minute,
			schedule_interval_weeks = EXCLUDED.schedule_interval_weeks,
			schedule_interval_mode = EXCLUDED.schedule_interval_mode,
			updated_at = EXCLUDED.updated_at`,
		cfg.ScopeID, cfg.PostingChannelRef, cfg.AnchorStartDate,
		s.Enabled, int(s.DayOfWeek), s.Hour, s.Minute, s.IntervalWeeks, string(s.IntervalMode),
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func (r *CompetitionRepository) ListCompetitionConfigs(ctx context.Context) ([]*competition.CompetitionConfig, error) {
	q, err := r.conn.Querier()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+configColumns+` FROM competition_configs ORDER BY scope_id`)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	configs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*competition.CompetitionConfig, error) {
		return scanConfig(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan configs: %w", err)
	}
	return configs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Identity links
// ─────────────────────────────────────────────────────────────────────────────

func (r *CompetitionRepository) CreateIdentityLink(ctx context.Context, link *competition.IdentityLink) error {
	q, err := r.conn.Querier()
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO identity_links (scope_id, chat_identity, device_identity, created_at)
		VALUES ($1, $2, $3, $4)`,
		link.ScopeID, link.ChatIdentity, link.DeviceIdentity, link.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case IsConstraint(err, "identity_links_chat_key"):
		return shared.ErrChatIdentityLinked
	case IsConstraint(err, "identity_links_device_key"):
		return shared.ErrDeviceLinked
	default:
		return fmt.Errorf("create link: %w", err)
	}
}

func (r *CompetitionRepository) GetLinkByChatIdentity(ctx context.Context, scope shared.ScopeID, chatIdentity string) (*competition.IdentityLink, error) {
	q, err := r.conn.Querier()
	if err != nil {
		return nil, err
	}
	link := &competition.IdentityLink{}
	err = q.QueryRow(ctx, `
		SELECT scope_id, chat_identity, device_identity, created_at
		FROM identity_links WHERE scope_id = $1 AND chat_identity = $2`,
		scope, chatIdentity,
	).Scan(&link.ScopeID, &link.ChatIdentity, &link.DeviceIdentity, &link.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLinkNotFound
		}
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (r *CompetitionRepository) ResolveLinkedIdentity(ctx context.Context, scope shared.ScopeID, participantID string) (string, bool, error) {
	if chat, ok := competition.ChatIdentityFromParticipantID(participantID); ok {
		return chat, true, nil
	}
	q, err := r.conn.Querier()
	if err != nil {
		return "", false, err
	}
	var chat string
	err = q.QueryRow(ctx,
		`SELECT chat_identity FROM identity_links WHERE scope_id = $1 AND device_identity = $2`,
		scope, participantID,
	).Scan(&chat)
	if err != nil {
		if IsNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolve link: %w", err)
	}
	return chat, true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCANNING
// ══════════════════════════════════════════════════════════════════════════════

func scanParticipant(row pgx.Row) (*competition.Participant, error) {
	p := &competition.Participant{}
	var scope string
	if err := row.Scan(&scope, &p.ID, &p.DisplayName, &p.CumulativeSteps, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ScopeID = shared.ScopeID(scope)
	return p, nil
}

func scanSubmission(row pgx.CollectableRow) (competition.SubmissionRecord, error) {
	var (
		rec    competition.SubmissionRecord
		source string
	)
	if err := row.Scan(&rec.ID, &rec.Timestamp, &rec.StepCount, &source); err != nil {
		return rec, err
	}
	rec.Timestamp = rec.Timestamp.UTC()
	rec.Source = competition.Source(source)
	return rec, nil
}

func scanConfig(row pgx.Row) (*competition.CompetitionConfig, error) {
	var (
		cfg       competition.CompetitionConfig
		scope     string
		anchor    *time.Time
		dayOfWeek int
		mode      string
	)
	err := row.Scan(
		&scope, &cfg.PostingChannelRef, &anchor,
		&cfg.Schedule.Enabled, &dayOfWeek, &cfg.Schedule.Hour, &cfg.Schedule.Minute,
		&cfg.Schedule.IntervalWeeks, &mode, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.ScopeID = shared.ScopeID(scope)
	cfg.Schedule.DayOfWeek = time.Weekday(dayOfWeek)
	cfg.Schedule.IntervalMode = schedule.IntervalMode(mode)
	if anchor != nil {
		a := anchor.UTC()
		cfg.AnchorStartDate = &a
	}
	return &cfg, nil
}
