package underwriting

import (
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestIsAmountAcceptable(t *testing.T) {
	cases := []struct {
		name           string
		category       domain.Category
		amount         float64
		classification domain.RiskClassification
		want           bool
	}{
		{"RegularAtLimit", domain.CategoryAuto, 500_000, domain.RiskRegular, true},
		{"RegularJustOver", domain.CategoryAuto, 500_000.01, domain.RiskRegular, false},
		{"HighRiskAtLimit", domain.CategoryResidential, 50_000, domain.RiskHigh, true},
		{"HighRiskOver", domain.CategoryAuto, 400_000, domain.RiskHigh, false},
		{"PreferredAtLimit", domain.CategoryAuto, 1_000_000, domain.RiskPreferred, true},
		{"PreferredOver", domain.CategoryAuto, 1_000_000.01, domain.RiskPreferred, false},
		{"NoInfoLifeAtLimit", domain.CategoryLife, 100_000, domain.RiskNoInformation, true},
		{"NoInfoLifeOver", domain.CategoryLife, 100_000.01, domain.RiskNoInformation, false},
		{"NoInfoTravelAtLimit", domain.CategoryTravel, 50_000, domain.RiskNoInformation, true},
		{"NoInfoTravelOver", domain.CategoryTravel, 50_000.01, domain.RiskNoInformation, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsAmountAcceptable(tc.category, tc.amount, tc.classification)
			if got != tc.want {
				t.Errorf("IsAmountAcceptable(%s, %.2f, %s) = %v, want %v",
					tc.category, tc.amount, tc.classification, got, tc.want)
			}
		})
	}
}

func TestDecideReason(t *testing.T) {
	ok, reason := Decide(domain.CategoryAuto, 400_000, domain.RiskHigh)
	if ok {
		t.Fatal("expected rejection for HIGH_RISK over limit")
	}
	if !strings.Contains(reason, "exceeds") || !strings.Contains(reason, "50000.00") {
		t.Errorf("reason should mention the exceeded limit, got %q", reason)
	}

	ok, reason = Decide(domain.CategoryAuto, 400_000, domain.RiskRegular)
	if !ok {
		t.Fatal("expected acceptance for REGULAR within limit")
	}
	if !strings.Contains(reason, "within") {
		t.Errorf("reason should mention acceptance, got %q", reason)
	}
}
