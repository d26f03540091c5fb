package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/cuongbtq/offer-importer/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// upsertOfferQuery inserts an offer or refreshes it in place. Manual and
// terminal statuses (paused, goal/budget completed, archived) survive the
// refresh, and the BudgetSpent/ApplicationsReceived counters are never reset.
const upsertOfferQuery = `
	INSERT INTO "JobOffers" (
		"ExternalId", "Title", "JobTitle", "Description", "CompanyName", "Sector",
		"Address", "Country", "CountryId", "Region", "RegionId", "City", "CityId",
		"Postcode", "Latitude", "Longitude", "Vacancies", "SalaryMin", "SalaryMax",
		"JobType", "ExternalUrl", "ApplicationUrl", "Budget", "BudgetSpent",
		"ApplicationsGoal", "ApplicationsReceived", "StatusId", "ConnectionId",
		"UserId", "Source", "PublicationDate", "CreatedAt"
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19,
		$20, $21, $22, $23, $24,
		$25, $26, $27, $28,
		$29, $30, COALESCE($31, NOW()), NOW()
	)
	ON CONFLICT ("ConnectionId", "ExternalId") DO UPDATE SET
		"Title" = EXCLUDED."Title",
		"JobTitle" = EXCLUDED."JobTitle",
		"Description" = EXCLUDED."Description",
		"CompanyName" = EXCLUDED."CompanyName",
		"Sector" = EXCLUDED."Sector",
		"Address" = EXCLUDED."Address",
		"Country" = EXCLUDED."Country",
		"CountryId" = EXCLUDED."CountryId",
		"Region" = EXCLUDED."Region",
		"RegionId" = EXCLUDED."RegionId",
		"City" = EXCLUDED."City",
		"CityId" = EXCLUDED."CityId",
		"Postcode" = EXCLUDED."Postcode",
		"Latitude" = EXCLUDED."Latitude",
		"Longitude" = EXCLUDED."Longitude",
		"Vacancies" = EXCLUDED."Vacancies",
		"SalaryMin" = EXCLUDED."SalaryMin",
		"SalaryMax" = EXCLUDED."SalaryMax",
		"JobType" = EXCLUDED."JobType",
		"ExternalUrl" = EXCLUDED."ExternalUrl",
		"ApplicationUrl" = EXCLUDED."ApplicationUrl",
		"Budget" = EXCLUDED."Budget",
		"ApplicationsGoal" = EXCLUDED."ApplicationsGoal",
		"StatusId" = CASE
			WHEN "JobOffers"."StatusId" IN (2, 3, 4, 5) THEN "JobOffers"."StatusId"
			ELSE EXCLUDED."StatusId"
		END,
		"UserId" = EXCLUDED."UserId",
		"Source" = EXCLUDED."Source",
		"PublicationDate" = EXCLUDED."PublicationDate",
		"UpdatedAt" = NOW()
`

func upsertArgs(o *domain.JobOffer) []interface{} {
	return []interface{}{
		o.ExternalID, o.Title, o.JobTitle, o.Description, o.CompanyName, o.Sector,
		o.Address, o.Country, o.CountryID, o.Region, o.RegionID, o.City, o.CityID,
		o.Postcode, o.Latitude, o.Longitude, o.Vacancies, o.SalaryMin, o.SalaryMax,
		o.JobType, o.ExternalURL, o.ApplicationURL, o.Budget, o.BudgetSpent,
		o.ApplicationsGoal, o.ApplicationsReceived, o.StatusID, o.ConnectionID,
		o.UserID, o.Source, o.PublicationDate,
	}
}

// UpsertBatch writes offers in one transaction with a savepoint per row. A
// failing row is rolled back to its savepoint and reported; the others are
// committed. The returned error is set only when the batch as a whole failed.
func (s *Storage) UpsertBatch(ctx context.Context, offers []*domain.JobOffer) (int, []domain.FailedOffer, error) {
	if len(offers) == 0 {
		return 0, nil, nil
	}

	var (
		saved  int
		failed []domain.FailedOffer
	)

	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		saved, failed = 0, nil

		for _, o := range offers {
			if _, err := tx.ExecContext(ctx, `SAVEPOINT offer_upsert`); err != nil {
				return fmt.Errorf("failed to create savepoint: %w", err)
			}

			if _, err := tx.ExecContext(ctx, upsertOfferQuery, upsertArgs(o)...); err != nil {
				if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT offer_upsert`); rbErr != nil {
					return fmt.Errorf("failed to roll back to savepoint: %w", rbErr)
				}
				s.logger.Warn("Offer upsert failed",
					slog.Int64("connection_id", o.ConnectionID),
					slog.String("external_id", o.ExternalID),
					slog.String("error", err.Error()),
				)
				failed = append(failed, domain.FailedOffer{ExternalID: o.ExternalID, Reason: err.Error()})
				continue
			}

			if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT offer_upsert`); err != nil {
				return fmt.Errorf("failed to release savepoint: %w", err)
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to upsert offer batch: %w", err)
	}

	return saved, failed, nil
}

// ArchiveMissing archives API offers of a connection whose ExternalId is not
// in activeIDs. Paused, completed and already archived rows are left alone.
// An empty activeIDs is a no-op.
func (s *Storage) ArchiveMissing(ctx context.Context, connectionID int64, activeIDs []string) (int64, error) {
	if len(activeIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE "JobOffers"
		SET "StatusId" = $1,
			"UpdatedAt" = NOW()
		WHERE "ConnectionId" = $2
		  AND "Source" = $3
		  AND "StatusId" NOT IN (2, 3, 4, 5)
		  AND NOT ("ExternalId" = ANY($4))
	`

	res, err := s.db.ExecContext(ctx, query, domain.StatusArchived, connectionID, domain.SourceAPI, pq.Array(activeIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to archive offers: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// UpdateStatusByGoals moves active offers that reached their applications
// goal to StatusGoalCompleted, then active offers that spent their budget to
// StatusBudgetCompleted. Only StatusActive rows are touched, so repeating the
// sweep changes nothing. connectionID nil sweeps every connection.
func (s *Storage) UpdateStatusByGoals(ctx context.Context, connectionID *int64) (domain.StatusSweepStats, error) {
	goalQuery := `
		UPDATE "JobOffers"
		SET "StatusId" = $1, "UpdatedAt" = NOW()
		WHERE "StatusId" = $2
		  AND "ApplicationsGoal" > 0
		  AND "ApplicationsReceived" >= "ApplicationsGoal"
	`
	budgetQuery := `
		UPDATE "JobOffers"
		SET "StatusId" = $1, "UpdatedAt" = NOW()
		WHERE "StatusId" = $2
		  AND "Budget" > 0
		  AND "BudgetSpent" >= "Budget"
	`
	goalArgs := []interface{}{domain.StatusGoalCompleted, domain.StatusActive}
	budgetArgs := []interface{}{domain.StatusBudgetCompleted, domain.StatusActive}

	if connectionID != nil {
		goalQuery += ` AND "ConnectionId" = $3`
		budgetQuery += ` AND "ConnectionId" = $3`
		goalArgs = append(goalArgs, *connectionID)
		budgetArgs = append(budgetArgs, *connectionID)
	}

	var stats domain.StatusSweepStats
	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, goalQuery, goalArgs...)
		if err != nil {
			return fmt.Errorf("failed to complete goal offers: %w", err)
		}
		if stats.GoalCompleted, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		res, err = tx.ExecContext(ctx, budgetQuery, budgetArgs...)
		if err != nil {
			return fmt.Errorf("failed to complete budget offers: %w", err)
		}
		if stats.BudgetCompleted, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.StatusSweepStats{}, err
	}

	if stats.GoalCompleted > 0 || stats.BudgetCompleted > 0 {
		s.logger.Info("Offer statuses updated",
			slog.Int64("goal_completed", stats.GoalCompleted),
			slog.Int64("budget_completed", stats.BudgetCompleted),
		)
	}
	return stats, nil
}

// OfferFilter narrows ListOffers.
type OfferFilter struct {
	ConnectionID *int64
	StatusID     *int
	PageSize     int
	Cursor       *OfferCursor
}

// OfferCursor is the keyset position of the last offer on a page.
type OfferCursor struct {
	CreatedAt time.Time
	ID        int64
}

const offerColumns = `
	"Id", "ExternalId",
	COALESCE("Title", '') AS "Title",
	COALESCE("JobTitle", '') AS "JobTitle",
	COALESCE("Description", '') AS "Description",
	COALESCE("CompanyName", '') AS "CompanyName",
	COALESCE("Sector", '') AS "Sector",
	COALESCE("Address", '') AS "Address",
	COALESCE("Country", '') AS "Country",
	"CountryId",
	COALESCE("Region", '') AS "Region",
	"RegionId",
	COALESCE("City", '') AS "City",
	"CityId",
	COALESCE("Postcode", '') AS "Postcode",
	"Latitude", "Longitude",
	COALESCE("Vacancies", 1) AS "Vacancies",
	"SalaryMin", "SalaryMax",
	COALESCE("JobType", '') AS "JobType",
	COALESCE("ExternalUrl", '') AS "ExternalUrl",
	COALESCE("ApplicationUrl", '') AS "ApplicationUrl",
	COALESCE("Budget", 0) AS "Budget",
	COALESCE("BudgetSpent", 0) AS "BudgetSpent",
	COALESCE("ApplicationsGoal", 0) AS "ApplicationsGoal",
	COALESCE("ApplicationsReceived", 0) AS "ApplicationsReceived",
	"StatusId", "ConnectionId", "UserId",
	COALESCE("Source", '') AS "Source",
	"PublicationDate", "CreatedAt", "UpdatedAt"
`

// ListOffers returns up to PageSize+1 offers newest first; the extra row
// tells the caller whether another page exists.
func (s *Storage) ListOffers(ctx context.Context, filter OfferFilter) ([]domain.JobOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM "JobOffers" WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.ConnectionID != nil {
		query += fmt.Sprintf(` AND "ConnectionId" = $%d`, argIdx)
		args = append(args, *filter.ConnectionID)
		argIdx++
	}

	if filter.StatusID != nil {
		query += fmt.Sprintf(` AND "StatusId" = $%d`, argIdx)
		args = append(args, *filter.StatusID)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(` AND ("CreatedAt", "Id") < ($%d, $%d)`, argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += ` ORDER BY "CreatedAt" DESC, "Id" DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.PageSize+1)

	offers := []domain.JobOffer{}
	if err := s.db.SelectContext(ctx, &offers, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}
