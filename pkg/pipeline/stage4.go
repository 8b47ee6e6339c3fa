package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harvestpipe/engine/pkg/artifact"
	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/tenant"
	"github.com/harvestpipe/engine/pkg/upstream"
)

// errCancelledDuringStage4 signals that a newer job was observed between
// items; the caller finishes the job as failed/cancelled rather than
// propagating this as a generic stage error.
var errCancelledDuringStage4 = errors.New("cancelled by newer job during stage 4")

// stage4ProbeItems processes the filtered table's rows in order, probing
// appointment availability for each one not already marked ok in
// check_progress.json, checkpointing periodically, and honoring
// cancellation between items.
func (e *Executor) stage4ProbeItems(ctx context.Context, t *tenant.Tenant, j *job.Job, st *runState, table *artifact.Table, bookingByItem map[string]string, pregatePassedByItem map[string]bool) error {
	progress := e.artifacts.ReadProgress(t.ID, j.QueryID)
	processedSinceFlush := 0

	flush := func() error {
		if err := e.artifacts.WriteSpreadsheet(e.artifacts.FilteredContainersPath(t.ID, j.QueryID), table); err != nil {
			return fmt.Errorf("flushing filtered_containers.xlsx: %w", err)
		}
		if err := e.artifacts.WriteProgress(t.ID, j.QueryID, progress); err != nil {
			return fmt.Errorf("flushing check_progress.json: %w", err)
		}
		return nil
	}

	for i := range table.Rows {
		itemID := table.Get(i, colContainerNumber)

		if entry, ok := progress[itemID]; ok && entry.Status == artifact.ProgressOK {
			continue
		}

		imported := isImport(table.Get(i, colTradeType))
		moveType := moveTypeDropFull
		identifier := itemID
		if imported {
			if pregatePassedByItem[itemID] {
				moveType = moveTypeDropEmpty
			} else {
				moveType = moveTypePickFull
			}
		} else {
			booking, ok := bookingByItem[itemID]
			if !ok || booking == "" {
				progress[itemID] = artifact.ProgressEntry{Status: artifact.ProgressFailed, Stage4Epoch: time.Now().Unix()}
				st.stats.ProbesFailed++
				processedSinceFlush++
				if err := e.maybeFlush(&processedSinceFlush, flush); err != nil {
					return err
				}
				if cancelled, cerr := e.checkCancelled(ctx, t.ID, j.Ordinal); cerr != nil {
					return cerr
				} else if cancelled {
					_ = flush()
					return errCancelledDuringStage4
				}
				continue
			}
			identifier = booking
		}

		rawTerminal := resolveTerminalCode(
			table.Get(i, colCurrentLoc),
			table.Get(i, colOrigin),
			table.Get(i, colDestination),
			imported,
		)
		terminal := mapTerminal(rawTerminal)

		kind := upstream.ProbeImport
		if !imported {
			kind = upstream.ProbeExport
		}
		params := upstream.ProbeParams{
			Kind:            kind,
			Terminal:        terminal,
			MoveType:        moveType,
			Trucking:        defaultTrucking,
			ItemIDOrBooking: identifier,
			Plate:           table.Get(i, "Plate"),
			OwnChassis:      parseBool(table.Get(i, "Own Chassis")),
		}

		result, err := callWithRecovery(ctx, e, t, j.Ordinal, st, func(session string, afterSuccess bool) (*upstream.ProbeResult, error) {
			return e.upstream.ProbeAppointments(ctx, session, params, afterSuccess)
		})

		epoch := time.Now().Unix()
		if err != nil {
			progress[itemID] = artifact.ProgressEntry{Status: artifact.ProgressFailed, Stage4Epoch: epoch}
			st.stats.ProbesFailed++
		} else {
			if perr := e.persistProbeArtifacts(ctx, t.ID, j.QueryID, itemID, epoch, result); perr != nil {
				return perr
			}

			status := artifact.ProgressOK
			if imported {
				if earliest, ok := earliestAvailableDate(result.AvailableTimes); ok {
					if moveType == moveTypePickFull {
						table.Set(i, colFirstApptBefore, earliest)
					} else {
						table.Set(i, colFirstApptAfter, earliest)
					}
				}
			} else if !result.CalendarFound {
				status = artifact.ProgressWarned
			}
			progress[itemID] = artifact.ProgressEntry{Status: status, Stage4Epoch: epoch}
			st.stats.ProbesOK++
		}

		processedSinceFlush++
		if err := e.maybeFlush(&processedSinceFlush, flush); err != nil {
			return err
		}

		if cancelled, cerr := e.checkCancelled(ctx, t.ID, j.Ordinal); cerr != nil {
			return cerr
		} else if cancelled {
			_ = flush()
			return errCancelledDuringStage4
		}
	}

	return flush()
}

// maybeFlush persists the working spreadsheet and progress checkpoint every
// CheckpointEvery processed items.
func (e *Executor) maybeFlush(processedSinceFlush *int, flush func() error) error {
	if *processedSinceFlush < e.cfg.CheckpointEvery {
		return nil
	}
	*processedSinceFlush = 0
	return flush()
}

func (e *Executor) persistProbeArtifacts(ctx context.Context, tenantID int64, queryID, itemID string, epoch int64, result *upstream.ProbeResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling probe response for %s: %w", itemID, err)
	}
	if err := e.artifacts.WriteResponse(tenantID, queryID, itemID, epoch, payload); err != nil {
		return fmt.Errorf("writing probe response for %s: %w", itemID, err)
	}

	if result.ScreenshotURL == "" {
		return nil
	}
	shot, derr := e.upstream.Download(ctx, result.ScreenshotURL)
	if derr != nil {
		return fmt.Errorf("downloading screenshot for %s: %w", itemID, derr)
	}
	if err := e.artifacts.WriteScreenshot(tenantID, queryID, itemID, epoch, shot.Bytes); err != nil {
		return fmt.Errorf("writing screenshot for %s: %w", itemID, err)
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}
