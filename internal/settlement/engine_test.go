package settlement

import (
	"errors"
	"testing"
	"time"

	"github.com/ametelin/bonus-system/internal/model"
)

func orderBonus(id int64, amountCents int64, accruedAt time.Time) model.Bonus {
	orderID := int64(10)
	return model.Bonus{
		ID:          id,
		UserID:      7,
		OrderID:     &orderID,
		AmountCents: amountCents,
		Role:        model.BonusRoleAgent,
		AccruedAt:   accruedAt,
		CreatedAt:   accruedAt,
	}
}

func TestPlanLinks_FIFO(t *testing.T) {
	base := time.Now()
	available := []model.Bonus{
		orderBonus(1, 100000, base.Add(-3*time.Hour)),
		orderBonus(2, 200000, base.Add(-2*time.Hour)),
		orderBonus(3, 300000, base.Add(-1*time.Hour)),
	}

	// Заявка на 1500 руб. против бонусов [1000, 2000, 3000]: первый
	// расходуется целиком, второй частично, третий не затрагивается.
	links, err := PlanLinks(available, 150000)
	if err != nil {
		t.Fatalf("PlanLinks error: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %d, want 2", len(links))
	}
	if links[0].BonusID != 1 || links[0].CoveredCents != 100000 {
		t.Fatalf("first link = %+v, want bonus 1 covered 100000", links[0])
	}
	if links[1].BonusID != 2 || links[1].CoveredCents != 50000 {
		t.Fatalf("second link = %+v, want bonus 2 covered 50000", links[1])
	}
}

func TestPlanLinks_CoverageSumEqualsAmount(t *testing.T) {
	base := time.Now()
	available := []model.Bonus{
		orderBonus(1, 12345, base.Add(-3*time.Hour)),
		orderBonus(2, 67890, base.Add(-2*time.Hour)),
		orderBonus(3, 11111, base.Add(-1*time.Hour)),
	}

	links, err := PlanLinks(available, 80000)
	if err != nil {
		t.Fatalf("PlanLinks error: %v", err)
	}

	var sum int64
	for _, l := range links {
		sum += l.CoveredCents
	}
	if sum != 80000 {
		t.Fatalf("covered sum = %d, want 80000", sum)
	}
}

func TestPlanLinks_ExactCoverage(t *testing.T) {
	base := time.Now()
	available := []model.Bonus{
		orderBonus(1, 100000, base.Add(-2*time.Hour)),
		orderBonus(2, 200000, base.Add(-1*time.Hour)),
	}

	links, err := PlanLinks(available, 300000)
	if err != nil {
		t.Fatalf("PlanLinks error: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %d, want 2", len(links))
	}
	if links[1].CoveredCents != 200000 {
		t.Fatalf("second link covered = %d, want 200000", links[1].CoveredCents)
	}
}

func TestPlanLinks_InsufficientBonuses(t *testing.T) {
	available := []model.Bonus{orderBonus(1, 100000, time.Now())}

	_, err := PlanLinks(available, 150000)
	if !errors.Is(err, ErrNotCovered) {
		t.Fatalf("expected ErrNotCovered, got %v", err)
	}
}

func TestPlanSettle_FullCoverage(t *testing.T) {
	now := time.Now()
	bonus := orderBonus(1, 100000, now.Add(-time.Hour))

	plan := PlanSettle(bonus, 100000, now)
	if plan.Remainder != nil {
		t.Fatalf("full coverage must not split, got remainder %+v", plan.Remainder)
	}
	if plan.AmountCents != 100000 {
		t.Fatalf("settled amount = %d, want 100000", plan.AmountCents)
	}
	if !plan.PaidAt.Equal(now) {
		t.Fatalf("paidAt = %v, want %v", plan.PaidAt, now)
	}
}

func TestPlanSettle_PartialCoverageSplits(t *testing.T) {
	now := time.Now()
	accrued := now.Add(-time.Hour)

	bonus := orderBonus(2, 200000, accrued)
	availableAt := now.Add(-30 * time.Minute)
	bonus.AvailableAt = &availableAt

	plan := PlanSettle(bonus, 50000, now)
	if plan.AmountCents != 50000 {
		t.Fatalf("original shrinks to covered part: got %d, want 50000", plan.AmountCents)
	}
	if plan.Remainder == nil {
		t.Fatalf("partial coverage must produce remainder")
	}

	rem := plan.Remainder
	if rem.AmountCents != 150000 {
		t.Fatalf("remainder = %d, want 150000", rem.AmountCents)
	}
	if rem.ID != 0 {
		t.Fatalf("remainder must be a new record, got id %d", rem.ID)
	}
	if rem.PaidAt != nil {
		t.Fatalf("remainder must be pending")
	}
	// Остаток наследует accrued_at и available_at и возвращается в очередь
	// на прежней позиции.
	if !rem.AccruedAt.Equal(accrued) {
		t.Fatalf("remainder accrued_at = %v, want %v", rem.AccruedAt, accrued)
	}
	if rem.AvailableAt == nil || !rem.AvailableAt.Equal(availableAt) {
		t.Fatalf("remainder available_at = %v, want %v", rem.AvailableAt, availableAt)
	}
	if rem.UserID != bonus.UserID || rem.Role != bonus.Role || !rem.SameDealRef(bonus) {
		t.Fatalf("remainder must clone recipient, role and deal reference: %+v", rem)
	}
	if !rem.DealRefValid() {
		t.Fatalf("remainder violates deal reference invariant")
	}
}

func TestMatchRemainder_RoundTrip(t *testing.T) {
	now := time.Now()
	accrued := now.Add(-time.Hour)

	original := orderBonus(2, 200000, accrued)

	// Погашение с частичным покрытием, затем откат.
	plan := PlanSettle(original, 50000, now)

	settled := original
	settled.AmountCents = plan.AmountCents
	settled.PaidAt = &plan.PaidAt

	remainder := *plan.Remainder
	remainder.ID = 99
	remainder.CreatedAt = now

	found := MatchRemainder(settled, []model.Bonus{remainder})
	if found == nil {
		t.Fatalf("remainder sibling not found")
	}
	if found.ID != 99 {
		t.Fatalf("found id = %d, want 99", found.ID)
	}

	restored := settled.AmountCents + found.AmountCents
	if restored != 200000 {
		t.Fatalf("restored amount = %d, want 200000", restored)
	}
}

func TestMatchRemainder_NoSplitHappened(t *testing.T) {
	now := time.Now()
	original := orderBonus(1, 100000, now.Add(-time.Hour))
	paid := now
	original.PaidAt = &paid

	if got := MatchRemainder(original, nil); got != nil {
		t.Fatalf("expected no remainder, got %+v", got)
	}
}

func TestMatchRemainder_RejectsWrongSiblings(t *testing.T) {
	now := time.Now()
	accrued := now.Add(-time.Hour)

	original := orderBonus(2, 50000, accrued)
	paid := now
	original.PaidAt = &paid

	otherUser := orderBonus(3, 150000, accrued)
	otherUser.UserID = 8
	otherUser.CreatedAt = now

	otherAccrued := orderBonus(4, 150000, accrued.Add(-time.Minute))
	otherAccrued.CreatedAt = now

	otherDeal := orderBonus(5, 150000, accrued)
	contractID := int64(77)
	otherDeal.OrderID = nil
	otherDeal.ContractID = &contractID
	otherDeal.CreatedAt = now

	olderThanOriginal := orderBonus(6, 150000, accrued)
	olderThanOriginal.CreatedAt = accrued.Add(-time.Minute)

	candidates := []model.Bonus{otherUser, otherAccrued, otherDeal, olderThanOriginal}
	if got := MatchRemainder(original, candidates); got != nil {
		t.Fatalf("expected no match, got %+v", got)
	}
}
