package service

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"trade_agent/internal/models"
	"trade_agent/pkg/db"
)

const insertAnalysisSQL = `
INSERT INTO analysis_history (ts, symbol, payload)
VALUES ($1, $2, $3)`

// Pg пишет историю анализа в postgres одной строкой на проход символа,
// payload — JSON целиком (рыночные данные + решение).
type Pg struct {
	db *db.PgTxManager
}

// NewPg instance
func NewPg(txm *db.PgTxManager) *Pg {
	return &Pg{db: txm}
}

func (p *Pg) Record(ctx context.Context, rec models.AnalysisRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Record: %w", err)
		}
	}()

	var payload []byte
	payload, err = sonic.Marshal(rec)
	if err != nil {
		return err
	}

	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, insertAnalysisSQL, rec.Timestamp, rec.Symbol, payload)
		return err
	})
}
