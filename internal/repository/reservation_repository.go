package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vala/car-rental-reservation/internal/booking"
	"github.com/vala/car-rental-reservation/internal/model"
)

// ReservationRepo reads and writes the reservations table.  Every status
// change goes through Save, a conditional UPDATE that only matches the
// row when it is still in the state the caller loaded.  All timestamps
// are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// activeStatuses hold a unit of the vehicle over their range.
var activeStatuses = []any{
	string(model.StatusPending),
	string(model.StatusConfirmed),
	string(model.StatusOngoing),
}

const reservationSelect = `SELECT r.id, r.produit_id, r.date_depart, r.date_retour,
       r.nom, r.prenom, r.telephone, r.email, r.lieu_prise, r.lieu_retour,
       r.nombre_jours, r.prix_total, r.statut, r.date_creation, r.date_modification,
       r.transaction_id, r.payment_method, r.payment_status, r.payment_initiated_at, r.capture_id,
       p.nom, p.marque, p.categorie, p.prix, p.quantite, p.image_url
FROM reservations r
JOIN produits p ON p.id = r.produit_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		r         model.Reservation
		v         model.Vehicle
		status    string
		txID      sql.NullString
		method    sql.NullString
		payStatus string
		initAt    sql.NullTime
		captureID sql.NullString
		imageURL  sql.NullString
		category  sql.NullString
	)
	err := s.Scan(
		&r.ID, &r.VehicleID, &r.Start, &r.End,
		&r.Contact.LastName, &r.Contact.FirstName, &r.Contact.Phone, &r.Contact.Email,
		&r.Pickup, &r.Return,
		&r.DayCount, &r.TotalPrice, &status, &r.CreatedAt, &r.UpdatedAt,
		&txID, &method, &payStatus, &initAt, &captureID,
		&v.Name, &v.Brand, &category, &v.DailyRate, &v.Quantity, &imageURL,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.Status(status)
	if payStatus != "" {
		r.Payment = &model.Payment{
			TransactionID: txID.String,
			Method:        model.PaymentMethod(method.String),
			Status:        model.PaymentState(payStatus),
			InitiatedAt:   initAt.Time,
			CaptureID:     captureID.String,
		}
	}
	v.ID = r.VehicleID
	v.Category = category.String
	v.ImageURL = imageURL.String
	r.Vehicle = &v
	return &r, nil
}

func (r *ReservationRepo) queryList(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *ReservationRepo) getOne(ctx context.Context, where string, arg any) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, reservationSelect+" WHERE "+where+" LIMIT 1", arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	return res, err
}

// GetByID loads a reservation with its vehicle.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return r.getOne(ctx, "r.id = ?", id)
}

// GetByTransactionID loads the reservation whose current payment intent
// carries the provider order id txID.
func (r *ReservationRepo) GetByTransactionID(ctx context.Context, txID string) (*model.Reservation, error) {
	if txID == "" {
		return nil, booking.ErrNotFound
	}
	return r.getOne(ctx, "r.transaction_id = ?", txID)
}

const overlapWhere = `produit_id = ? AND statut IN (?, ?, ?) AND date_depart < ? AND date_retour > ?`

func overlapArgs(vehicleID uint64, start, end model.Date) []any {
	args := []any{vehicleID}
	args = append(args, activeStatuses...)
	return append(args, end, start)
}

// CountOverlapping counts active reservations of the vehicle whose range
// intersects [start, end).
func (r *ReservationRepo) CountOverlapping(ctx context.Context, vehicleID uint64, start, end model.Date) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reservations WHERE "+overlapWhere,
		overlapArgs(vehicleID, start, end)...).Scan(&n)
	return n, err
}

// InsertIfAvailable locks the vehicle row, counts overlapping active
// reservations and inserts res only when a unit is still free.  Concurrent
// creations for the same vehicle serialise on the row lock.
func (r *ReservationRepo) InsertIfAvailable(ctx context.Context, res *model.Reservation) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var quantity int
	err = tx.QueryRowContext(ctx, "SELECT quantite FROM produits WHERE id = ? FOR UPDATE", res.VehicleID).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ErrNotFound
	}
	if err != nil {
		return err
	}

	var booked int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reservations WHERE "+overlapWhere,
		overlapArgs(res.VehicleID, res.Start, res.End)...).Scan(&booked); err != nil {
		return err
	}
	if booked >= quantity {
		return booking.ErrVehicleUnavailable
	}

	const ins = `INSERT INTO reservations
        (produit_id, date_depart, date_retour, nom, prenom, telephone, email, lieu_prise, lieu_retour,
         nombre_jours, prix_total, statut, date_creation, date_modification, payment_status)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '')`
	result, err := tx.ExecContext(ctx, ins,
		res.VehicleID, res.Start, res.End,
		res.Contact.LastName, res.Contact.FirstName, res.Contact.Phone, res.Contact.Email,
		string(res.Pickup), string(res.Return),
		res.DayCount, res.TotalPrice, string(res.Status), res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	res.ID = uint64(id)
	return nil
}

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

// Save writes the mutable columns of res when the stored row still matches
// expect.  booking.ErrStaleState is returned when it does not, and
// booking.ErrNotFound when the row is gone.
func (r *ReservationRepo) Save(ctx context.Context, res *model.Reservation, expect booking.Snapshot) error {
	var (
		txID, method, captureID sql.NullString
		initAt                  sql.NullTime
		payStatus               string
	)
	if p := res.Payment; p != nil {
		txID = nullString(p.TransactionID)
		method = nullString(string(p.Method))
		captureID = nullString(p.CaptureID)
		initAt = sql.NullTime{Time: p.InitiatedAt.UTC(), Valid: !p.InitiatedAt.IsZero()}
		payStatus = string(p.Status)
	}
	const q = `UPDATE reservations
        SET statut = ?, date_modification = ?, transaction_id = ?, payment_method = ?,
            payment_status = ?, payment_initiated_at = ?, capture_id = ?
        WHERE id = ? AND statut = ? AND payment_status = ? AND COALESCE(transaction_id, '') = ?`
	result, err := r.db.ExecContext(ctx, q,
		string(res.Status), res.UpdatedAt.UTC(), txID, method, payStatus, initAt, captureID,
		res.ID, string(expect.Status), string(expect.Payment), expect.TransactionID,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, "SELECT 1 FROM reservations WHERE id = ?", res.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ErrNotFound
	}
	if err != nil {
		return err
	}
	return booking.ErrStaleState
}

// List returns one page of reservations matching f, newest first, and the
// total number of matching rows.
func (r *ReservationRepo) List(ctx context.Context, f booking.Filter) ([]model.Reservation, int, error) {
	var where []string
	var args []any
	if f.Email != "" {
		where = append(where, "r.email = ?")
		args = append(args, f.Email)
	}
	if f.Status != "" {
		where = append(where, "r.statut = ?")
		args = append(args, string(f.Status))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations r"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Reservation{}, 0, nil
	}
	q := reservationSelect + cond + " ORDER BY r.date_creation DESC, r.id DESC LIMIT ? OFFSET ?"
	items, err := r.queryList(ctx, q, append(args, f.Size, f.Page*f.Size)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByEmail returns every reservation made with the given contact email,
// newest first.
func (r *ReservationRepo) ListByEmail(ctx context.Context, email string) ([]model.Reservation, error) {
	return r.queryList(ctx, reservationSelect+" WHERE r.email = ? ORDER BY r.date_creation DESC, r.id DESC", email)
}

// ListStalePending returns EN_ATTENTE reservations created before
// createdBefore whose payment was never captured.  Rows holding an intent
// initiated at or after initiatedBefore are skipped.
func (r *ReservationRepo) ListStalePending(ctx context.Context, createdBefore, initiatedBefore time.Time) ([]model.Reservation, error) {
	return r.queryList(ctx,
		reservationSelect+` WHERE r.statut = ? AND r.date_creation < ? AND r.payment_status <> ?
          AND (r.payment_status <> ? OR r.payment_initiated_at IS NULL OR r.payment_initiated_at < ?)
        ORDER BY r.id`,
		string(model.StatusPending), createdBefore.UTC(), string(model.PaymentCaptured),
		string(model.PaymentInitiated), initiatedBefore.UTC())
}
