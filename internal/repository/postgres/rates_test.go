package postgres

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v2"
)

func TestRateRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRateRepository(mock)

	rows := pgxmock.NewRows([]string{"id", "amount", "minutes", "rate_up_kbps", "rate_down_kbps"}).
		AddRow("rate-5", int64(5), int64(30), int64(256), int64(1024)).
		AddRow("rate-10", int64(10), int64(70), int64(512), int64(2048))

	mock.ExpectQuery(`SELECT id, amount, minutes, rate_up_kbps, rate_down_kbps FROM gateway\.rates ORDER BY amount`).
		WillReturnRows(rows)

	rates, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(rates))
	}
	if rates[0].ID != "rate-5" || rates[0].Minutes != 30 {
		t.Fatalf("unexpected first rate: %+v", rates[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRateRepository_VisibleTo(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRateRepository(mock)

	rows := pgxmock.NewRows([]string{"id", "amount", "minutes", "rate_up_kbps", "rate_down_kbps"}).
		AddRow("rate-5", int64(5), int64(30), int64(256), int64(1024))

	mock.ExpectQuery(`SELECT r\.id, r\.amount, r\.minutes, r\.rate_up_kbps, r\.rate_down_kbps FROM gateway\.rates r`).
		WithArgs("slot-1").
		WillReturnRows(rows)

	rates, err := repo.VisibleTo(context.Background(), "slot-1")
	if err != nil {
		t.Fatalf("VisibleTo returned error: %v", err)
	}
	if len(rates) != 1 {
		t.Fatalf("expected 1 rate, got %d", len(rates))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRateRepository_ListEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRateRepository(mock)

	mock.ExpectQuery(`SELECT id, amount, minutes, rate_up_kbps, rate_down_kbps FROM gateway\.rates ORDER BY amount`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "amount", "minutes", "rate_up_kbps", "rate_down_kbps"}))

	rates, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(rates) != 0 {
		t.Fatalf("expected 0 rates, got %d", len(rates))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
