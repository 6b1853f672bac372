package roles

import (
	"errors"
	"testing"

	"github.com/tradeflow/approval-engine/internal/domain/document"
)

func testResolver() *StaticResolver {
	return NewStaticResolver(map[document.Kind]KindMappings{
		document.KindTradeSpend: {
			Roles: map[string]string{
				"key_account_manager": "kam",
				"sales_manager":       "manager",
			},
			Users: map[string]string{
				"alice": "kam",
				"bob":   "kam",
				"carol": "manager",
			},
		},
	})
}

func TestStaticResolver_LevelForRole(t *testing.T) {
	r := testResolver()

	level, err := r.LevelForRole(document.KindTradeSpend, "key_account_manager")
	if err != nil {
		t.Fatalf("LevelForRole() unexpected error: %v", err)
	}
	if level != "kam" {
		t.Errorf("LevelForRole() = %s, want kam", level)
	}

	if _, err := r.LevelForRole(document.KindTradeSpend, "intern"); !errors.Is(err, document.ErrNotAuthorized) {
		t.Errorf("LevelForRole(unknown role) error = %v, want ErrNotAuthorized", err)
	}
	if _, err := r.LevelForRole(document.KindBudget, "key_account_manager"); !errors.Is(err, document.ErrNotAuthorized) {
		t.Errorf("LevelForRole(unmapped kind) error = %v, want ErrNotAuthorized", err)
	}
}

func TestStaticResolver_LevelForUser(t *testing.T) {
	r := testResolver()

	level, err := r.LevelForUser(document.KindTradeSpend, "carol")
	if err != nil {
		t.Fatalf("LevelForUser() unexpected error: %v", err)
	}
	if level != "manager" {
		t.Errorf("LevelForUser() = %s, want manager", level)
	}

	if _, err := r.LevelForUser(document.KindTradeSpend, "mallory"); !errors.Is(err, document.ErrNotAuthorized) {
		t.Errorf("LevelForUser(unknown user) error = %v, want ErrNotAuthorized", err)
	}
}
