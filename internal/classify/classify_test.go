// File path: internal/classify/classify_test.go
package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

func TestClassification(t *testing.T) {
	cases := []struct {
		name        string
		requestType string
		productArea string
		body        string
		want        model.Classification
	}{
		{"product request", "Product Request", "", "", model.ClassFeatureRequest},
		{"documentation", "Documentation", "", "", model.ClassDocumentation},
		{"general question", "General Question", "", "", model.ClassGeneralQuestion},
		{"skip", "Account Management", "", "", model.ClassSkip},
		{"defect connector area", "Defect", "Connectors", "", model.ClassConnectorBug},
		{"troubleshooting product area", "Troubleshooting", "Access Reviews", "", model.ClassProductBug},
		{"defect falls back to body", "Defect", "Billing", "Is it possible to export reports?", model.ClassFeatureRequest},
		{"connector mention", "", "", "Okta sync fails nightly", model.ClassConnectorBug},
		{"ui keywords", "", "", "The dashboard is blank", model.ClassProductBug},
		{"default", "", "", "nothing relevant", model.ClassProductBug},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classification(tc.requestType, tc.productArea, tc.body))
		})
	}
}

func TestConnectorName(t *testing.T) {
	assert.Nil(t, ConnectorName(""))
	assert.Nil(t, ConnectorName("nothing relevant"))
	assert.Equal(t, "okta", model.Deref(ConnectorName("OKTA groups missing")))
	assert.Equal(t, "google-workspace", model.Deref(ConnectorName("Google Workspace users")))
}

func TestPriority(t *testing.T) {
	assert.Equal(t, "P1", Priority(model.ClassProductBug, "Production is down", nil))
	assert.Equal(t, "P1", Priority(model.ClassProductBug, "", []string{"urgent"}))
	assert.Equal(t, "P2", Priority(model.ClassConnectorBug, "sync is broken", nil))
	assert.Equal(t, "P4", Priority(model.ClassFeatureRequest, "please add", nil))
	assert.Equal(t, "P3", Priority(model.ClassProductBug, "question", nil))
}

func TestProductArea(t *testing.T) {
	okta := "okta"
	assert.Equal(t, "Connectors", ProductArea(model.ClassConnectorBug, "", &okta))
	assert.Equal(t, "Policies", ProductArea(model.ClassProductBug, "review policy is wrong", nil))
	assert.Equal(t, "Access Requests", ProductArea(model.ClassProductBug, "the request flow hangs", nil))
	assert.Equal(t, "Platform / UI", ProductArea(model.ClassProductBug, "blank page", nil))
	assert.Equal(t, "Other", ProductArea(model.ClassGeneralQuestion, "how do I", nil))
}

func TestTicket(t *testing.T) {
	got := Ticket(Input{RequestType: "Defect", ProductArea: "Connectors", Body: "Okta provisioning error"})
	want := Result{
		Classification:    model.ClassConnectorBug,
		ConnectorName:     model.Ptr("okta"),
		ProductArea:       "Connectors",
		SuggestedPriority: "P2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Ticket mismatch (-want +got):\n%s", diff)
	}
}
