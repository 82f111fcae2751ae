package appointment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/events"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type fixture struct {
	svc  *Service
	repo *memRepo
	dir  *stubDirectory
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()
	repo := newMemRepo()
	dir := newStubDirectory()
	cfg := config.Config{LeadTime: 3 * time.Hour, Location: time.UTC}
	svc := NewService(repo, dir, locker, cfg, zap.NewNop(), nil).
		WithClock(func() time.Time { return testNow })
	return &fixture{svc: svc, repo: repo, dir: dir}
}

func (f *fixture) patientBooks(t *testing.T, providerID uuid.UUID, when time.Time) (*Appointment, auth.Actor, error) {
	t.Helper()
	patient, actor := f.dir.addPatient()
	appt, err := f.svc.BookAsPatient(context.Background(), actor, patient.ID, BookingRequest{
		ProviderID:  providerID,
		Purpose:     "tooth replacement",
		ScheduledAt: when,
	})
	return appt, actor, err
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, doctorActor := f.dir.addProvider(5000)
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 1)

	appt, _, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, appt.Status)
	assert.Equal(t, int64(5000), appt.AmountCents)

	_, _, err = f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.ErrorIs(t, err, ErrFullyBooked)
	assert.Equal(t, "Timeslot is Fully Booked.", err.Error())

	confirmed, err := f.svc.UpdateStatus(ctx, doctorActor, doctor.ID, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := f.svc.UpdateStatus(ctx, doctorActor, doctor.ID, appt.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	assert.Equal(t, []events.Type{
		events.AppointmentCreated,
		events.AppointmentConfirmed,
		events.AppointmentCompleted,
	}, f.repo.eventTypes())
}

func TestBookAsProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, doctorActor := f.dir.addProvider(2500)
	other, otherActor := f.dir.addProvider(100)
	patient, patientActor := f.dir.addPatient()
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 2)

	req := BookingRequest{PatientID: patient.ID, Purpose: "checkup", ScheduledAt: at(19, 10, 0)}

	_, err := f.svc.BookAsProvider(ctx, auth.Actor{}, doctor.ID, req)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.svc.BookAsProvider(ctx, otherActor, doctor.ID, req)
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.BookAsProvider(ctx, patientActor, doctor.ID, req)
	require.ErrorIs(t, err, auth.ErrForbidden)

	// the other doctor has no schedule
	_, err = f.svc.BookAsProvider(ctx, otherActor, other.ID, req)
	require.ErrorIs(t, err, ErrNoSchedule)

	appt, err := f.svc.BookAsProvider(ctx, doctorActor, doctor.ID, req)
	require.NoError(t, err)
	assert.Equal(t, doctor.ID, appt.ProviderID)
	assert.Equal(t, patient.ID, appt.PatientID)
	assert.Equal(t, StatusWaiting, appt.Status)
	assert.Contains(t, f.repo.lockedRows(), doctor.ID)
}

func TestBookRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, _ := f.dir.addProvider(100)
	patient, actor := f.dir.addPatient()
	stranger, _ := f.dir.addPatient()
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 5)

	book := func(req BookingRequest) error {
		req.ProviderID = doctor.ID
		_, err := f.svc.BookAsPatient(ctx, actor, patient.ID, req)
		return err
	}

	require.ErrorIs(t, book(BookingRequest{ScheduledAt: at(19, 9, 30)}), ErrPurposeRequired)
	require.ErrorIs(t, book(BookingRequest{Purpose: "   ", ScheduledAt: at(19, 9, 30)}), ErrPurposeRequired)
	require.ErrorIs(t, book(BookingRequest{Purpose: fmt.Sprintf("%051d", 0), ScheduledAt: at(19, 9, 30)}), ErrPurposeTooLong)
	require.ErrorIs(t, book(BookingRequest{Purpose: "x"}), ErrScheduledAtEmpty)

	strangers := Appointment{ID: uuid.New(), ProviderID: doctor.ID, PatientID: stranger.ID, Status: StatusCompleted, ScheduledAt: at(12, 9, 30)}
	require.NoError(t, f.repo.InsertAppointment(ctx, &strangers))
	missing := uuid.New()
	require.ErrorIs(t, book(BookingRequest{Purpose: "x", ScheduledAt: at(19, 9, 30), FollowUpOf: &strangers.ID}), ErrInvalidFollowUp)
	require.ErrorIs(t, book(BookingRequest{Purpose: "x", ScheduledAt: at(19, 9, 30), FollowUpOf: &missing}), ErrInvalidFollowUp)

	_, err := f.svc.BookAsPatient(ctx, actor, patient.ID, BookingRequest{ProviderID: uuid.New(), Purpose: "x", ScheduledAt: at(19, 9, 30)})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFollowUpBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, _ := f.dir.addProvider(100)
	patient, actor := f.dir.addPatient()
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 5)

	prev := Appointment{ID: uuid.New(), ProviderID: doctor.ID, PatientID: patient.ID, Status: StatusCompleted, ScheduledAt: at(12, 9, 30)}
	require.NoError(t, f.repo.InsertAppointment(ctx, &prev))

	appt, err := f.svc.BookAsPatient(ctx, actor, patient.ID, BookingRequest{
		ProviderID:  doctor.ID,
		Purpose:     "follow up",
		ScheduledAt: at(19, 9, 30),
		FollowUpOf:  &prev.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, appt.FollowUpOf)
	assert.Equal(t, prev.ID, *appt.FollowUpOf)
}

func TestAmountStampedFromPricing(t *testing.T) {
	f := newFixture(t, passLocker{})
	doctor, _ := f.dir.addProvider(4200)
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 5)

	first, _, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.NoError(t, err)
	assert.Equal(t, int64(4200), first.AmountCents)
	assert.Equal(t, StatusWaiting, first.Status)

	doctor.PricingCents = 9900
	f.dir.providers[doctor.ID] = doctor

	second, _, err := f.patientBooks(t, doctor.ID, at(19, 9, 45))
	require.NoError(t, err)
	assert.Equal(t, int64(9900), second.AmountCents)

	stored, err := f.repo.GetAppointmentByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4200), stored.AmountCents)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, doctorActor := f.dir.addProvider(100)
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 5)

	appt, patientActor, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.NoError(t, err)

	// a doctor cannot cancel through the patient route
	_, err = f.svc.CancelAsPatient(ctx, doctorActor, appt.PatientID, appt.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)

	canceled, err := f.svc.CancelAsPatient(ctx, patientActor, appt.PatientID, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	_, err = f.svc.CancelAsPatient(ctx, patientActor, appt.PatientID, appt.ID)
	require.ErrorIs(t, err, apperr.ErrRuleViolation)
	assert.Equal(t, "Appointment is already canceled.", err.Error())

	_, err = f.svc.CancelAsProvider(ctx, doctorActor, doctor.ID, appt.ID)
	require.ErrorIs(t, err, apperr.ErrRuleViolation)

	stored, _ := f.repo.GetAppointmentByID(ctx, appt.ID)
	assert.Equal(t, StatusCanceled, stored.Status)
}

func TestCancelTerminalAndPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, doctorActor := f.dir.addProvider(100)
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 5)

	tests := []struct {
		status Status
		detail string
	}{
		{StatusCompleted, "Completed appointments cannot be canceled."},
		{StatusPaid, "Paid appointments cannot be canceled."},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			appt, _, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
			require.NoError(t, err)
			f.repo.setStatus(appt.ID, tt.status)
			nEvents := len(f.repo.eventTypes())

			_, err = f.svc.CancelAsProvider(ctx, doctorActor, doctor.ID, appt.ID)
			require.ErrorIs(t, err, apperr.ErrRuleViolation)
			assert.Equal(t, tt.detail, err.Error())

			stored, _ := f.repo.GetAppointmentByID(ctx, appt.ID)
			assert.Equal(t, tt.status, stored.Status)
			assert.Len(t, f.repo.eventTypes(), nEvents)
		})
	}
}

func TestUpdateStatusRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, doctorActor := f.dir.addProvider(100)
	other, otherActor := f.dir.addProvider(100)
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 5)

	appt, patientActor, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, patientActor, doctor.ID, appt.ID, StatusConfirmed)
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, otherActor, doctor.ID, appt.ID, StatusConfirmed)
	require.ErrorIs(t, err, auth.ErrForbidden)

	// scoped to the route doctor
	_, err = f.svc.UpdateStatus(ctx, otherActor, other.ID, appt.ID, StatusConfirmed)
	require.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = f.svc.UpdateStatus(ctx, doctorActor, doctor.ID, appt.ID, StatusCompleted)
	require.ErrorIs(t, err, apperr.ErrRuleViolation)

	_, err = f.svc.UpdateStatus(ctx, doctorActor, doctor.ID, appt.ID, StatusCanceled)
	require.ErrorIs(t, err, apperr.ErrRuleViolation)

	_, err = f.svc.UpdateStatus(ctx, doctorActor, doctor.ID, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, doctorActor, doctor.ID, appt.ID, StatusConfirmed)
	require.ErrorIs(t, err, apperr.ErrRuleViolation)
	assert.Equal(t, "Appointment is already confirmed.", err.Error())
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, _ := f.dir.addProvider(100)
	avail := mondaySchedule(doctor.ID, "09:30", "10:30", 1)
	afternoon := schedule.TimeSlot{
		ID:         uuid.New(),
		ProviderID: doctor.ID,
		Start:      schedule.MustClock("14:00"),
		End:        schedule.MustClock("15:00"),
		Capacity:   1,
	}
	avail.Entries[0].Slots = append(avail.Entries[0].Slots, afternoon)
	f.repo.avail[doctor.ID] = avail

	morning, morningActor, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.NoError(t, err)
	later, laterActor, err := f.patientBooks(t, doctor.ID, at(19, 14, 0))
	require.NoError(t, err)

	// moving within its own full window is fine
	moved, err := f.svc.Reschedule(ctx, morningActor, morning.PatientID, morning.ID, at(19, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, StatusRescheduled, moved.Status)
	assert.True(t, moved.ScheduledAt.Equal(at(19, 10, 0)))

	// the morning window is taken by someone else
	_, err = f.svc.Reschedule(ctx, laterActor, later.PatientID, later.ID, at(19, 9, 45))
	require.ErrorIs(t, err, ErrFullyBooked)
	stored, _ := f.repo.GetAppointmentByID(ctx, later.ID)
	assert.Equal(t, StatusWaiting, stored.Status)
	assert.True(t, stored.ScheduledAt.Equal(at(19, 14, 0)))

	_, err = f.svc.Reschedule(ctx, laterActor, later.PatientID, later.ID, at(20, 9, 45))
	require.ErrorIs(t, err, ErrInvalidDate)

	_, err = f.svc.Reschedule(ctx, laterActor, later.PatientID, later.ID, testNow.Add(time.Hour))
	require.ErrorIs(t, err, apperr.ErrRuleViolation)

	// only the owning patient
	_, err = f.svc.Reschedule(ctx, morningActor, later.PatientID, later.ID, at(26, 14, 0))
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.CancelAsPatient(ctx, laterActor, later.PatientID, later.ID)
	require.NoError(t, err)
	_, err = f.svc.Reschedule(ctx, laterActor, later.PatientID, later.ID, at(26, 14, 0))
	require.ErrorIs(t, err, apperr.ErrRuleViolation)
	assert.Equal(t, "Canceled appointments cannot be rescheduled.", err.Error())
}

func TestWindowBusy(t *testing.T) {
	f := newFixture(t, busyLocker{})
	doctor, _ := f.dir.addProvider(100)
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 1)

	_, _, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.ErrorIs(t, err, ErrWindowBusy)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, f.repo.eventTypes())
}

func TestConcurrentBookingsRespectCapacity(t *testing.T) {
	const capacity, attempts = 3, 20

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lockers := map[string]redisclient.Locker{
		"row lock only": passLocker{},
		"redis lock":    redisclient.NewRedisProviderLocker(client, 5*time.Second, 5*time.Second),
	}
	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, locker)
			doctor, _ := f.dir.addProvider(100)
			f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", capacity)

			var ok, full atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _, err := f.patientBooks(t, doctor.ID, at(19, 9, 30+i%30))
					switch {
					case err == nil:
						ok.Add(1)
					case assert.ErrorIs(t, err, ErrFullyBooked):
						full.Add(1)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, int32(capacity), ok.Load())
			assert.Equal(t, int32(attempts-capacity), full.Load())

			n, err := f.repo.CountActiveInWindow(context.Background(), doctor.ID, at(19, 9, 30), at(19, 10, 31), uuid.Nil)
			require.NoError(t, err)
			assert.Equal(t, capacity, n)
		})
	}
}

// touchingSchedule gives provider two Monday windows sharing the 10:00 minute.
func touchingSchedule(providerID uuid.UUID) schedule.Availability {
	avail := mondaySchedule(providerID, "09:00", "10:00", 1)
	avail.Entries[0].Slots = append(avail.Entries[0].Slots, schedule.TimeSlot{
		ID:         uuid.New(),
		ProviderID: providerID,
		Start:      schedule.MustClock("10:00"),
		End:        schedule.MustClock("11:00"),
		Capacity:   1,
	})
	return avail
}

func TestTouchingWindowsShareCapacity(t *testing.T) {
	f := newFixture(t, passLocker{})
	doctor, _ := f.dir.addProvider(100)
	f.repo.avail[doctor.ID] = touchingSchedule(doctor.ID)

	// the first transaction to count waits for a second one to reach the
	// same point; only a shared lock keeps the second one out
	var counted atomic.Int32
	first := make(chan struct{})
	f.repo.onTxCount = func() {
		if counted.Add(1) == 1 {
			close(first)
			deadline := time.Now().Add(300 * time.Millisecond)
			for counted.Load() < 2 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
		}
	}

	var wg sync.WaitGroup
	var errEarly, errLate error
	wg.Add(2)
	go func() {
		defer wg.Done()
		// 10:00 matches the 09:00 window and lands in the 10:00 window too
		_, _, errEarly = f.patientBooks(t, doctor.ID, at(19, 10, 0))
	}()
	go func() {
		defer wg.Done()
		<-first
		_, _, errLate = f.patientBooks(t, doctor.ID, at(19, 10, 30))
	}()
	wg.Wait()

	require.NoError(t, errEarly)
	require.ErrorIs(t, errLate, ErrFullyBooked)

	n, err := f.repo.CountActiveInWindow(context.Background(), doctor.ID, at(19, 10, 0), at(19, 11, 1), uuid.Nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 1)
}

func TestTouchingWindowsSerialOutcome(t *testing.T) {
	f := newFixture(t, passLocker{})
	doctor, _ := f.dir.addProvider(100)
	f.repo.avail[doctor.ID] = touchingSchedule(doctor.ID)

	_, _, err := f.patientBooks(t, doctor.ID, at(19, 10, 0))
	require.NoError(t, err)
	_, _, err = f.patientBooks(t, doctor.ID, at(19, 10, 30))
	require.ErrorIs(t, err, ErrFullyBooked)
}

func TestRedisDownFallsBackToRowLock(t *testing.T) {
	f := newFixture(t, downLocker{})
	doctor, _ := f.dir.addProvider(100)
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 1)

	appt, _, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, appt.Status)
	assert.Contains(t, f.repo.lockedRows(), doctor.ID)

	_, _, err = f.patientBooks(t, doctor.ID, at(19, 9, 45))
	require.ErrorIs(t, err, ErrFullyBooked)
}

func TestRejectModification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, doctorActor := f.dir.addProvider(100)
	patient, patientActor := f.dir.addPatient()

	err := f.svc.RejectModification(ctx, doctorActor, OriginProvider, doctor.ID, "PUT")
	require.ErrorIs(t, err, apperr.ErrMethodNotAllowed)
	assert.Equal(t, `Method "PUT" not allowed.`, err.Error())

	err = f.svc.RejectModification(ctx, patientActor, OriginProvider, doctor.ID, "DELETE")
	require.ErrorIs(t, err, auth.ErrForbidden)

	err = f.svc.RejectModification(ctx, patientActor, OriginPatient, patient.ID, "PATCH")
	require.ErrorIs(t, err, apperr.ErrMethodNotAllowed)

	err = f.svc.RejectModification(ctx, auth.Actor{}, OriginPatient, patient.ID, "PATCH")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestReadsAreScoped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, doctorActor := f.dir.addProvider(100)
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 5)

	appt, patientActor, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.NoError(t, err)
	other, otherActor := f.dir.addPatient()

	got, err := f.svc.GetForProvider(ctx, doctorActor, doctor.ID, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)

	got, err = f.svc.GetForPatient(ctx, patientActor, appt.PatientID, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)

	_, err = f.svc.GetForPatient(ctx, otherActor, other.ID, appt.ID)
	require.ErrorIs(t, err, ErrAppointmentNotFound)

	admin := auth.Actor{UserID: uuid.New(), Role: auth.RoleAdmin}
	list, err := f.svc.ListForProvider(ctx, admin, doctor.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.ListForPatient(ctx, otherActor, other.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.ListForPatient(ctx, otherActor, appt.PatientID, 10, 0)
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestDayAvailability(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passLocker{})
	doctor, _ := f.dir.addProvider(100)
	f.repo.avail[doctor.ID] = mondaySchedule(doctor.ID, "09:30", "10:30", 2)

	_, _, err := f.patientBooks(t, doctor.ID, at(19, 9, 30))
	require.NoError(t, err)

	windows, err := f.svc.DayAvailability(ctx, doctor.ID, at(19, 0, 0))
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 1, windows[0].Booked)
	assert.Equal(t, 1, windows[0].Remaining)
	assert.True(t, windows[0].Start.Equal(at(19, 9, 30)))

	windows, err = f.svc.DayAvailability(ctx, doctor.ID, at(20, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, windows)
}
