package data

import (
	"database/sql"
	"errors"
	"fmt"
)

var stateQueries = map[string]string{
	"runs":         "SELECT COUNT(*) FROM run",
	"results":      "SELECT COUNT(*) FROM run_result",
	"customers":    "SELECT COUNT(DISTINCT customer_id) FROM run_result",
	"top_drivers":  "SELECT COUNT(DISTINCT top_driver) FROM run_result",
	"high_risk_90": "SELECT COUNT(*) FROM run_result WHERE predicted_churn_prob >= 0.9",
}

// GetDataState returns row counts describing the run history.
func GetDataState(db *sql.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64, len(stateQueries))
	for k, v := range stateQueries {
		count, err := getCount(db, v)
		if err != nil {
			return nil, fmt.Errorf("error getting %s count: %w", k, err)
		}
		state[k] = count
	}

	return state, nil
}

func getCount(db *sql.DB, query string) (int64, error) {
	var count int64
	if err := db.QueryRow(bind(db, query)).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to scan row: %w", err)
	}
	return count, nil
}
