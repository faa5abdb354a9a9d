package crew

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDefinition(t *testing.T) {
	d := DefaultDefinition()
	require.NoError(t, d.Validate())

	tc, ac := d.Stage(TaskCoordinate)
	assert.Equal(t, "reminder_coordinator", tc.Agent)
	assert.Equal(t, DefaultOutputFile, tc.OutputFile)
	assert.Equal(t, "Reminder Coordinator", ac.Role)

	_, ac = d.Stage(TaskValidate)
	assert.Equal(t, "HIPAA Compliance Officer", ac.Role)
}

const testAgents = `
compliance:
  role: Compliance
  goal: check
scheduler:
  role: Scheduler
  goal: format
coordinator:
  role: Coordinator
  goal: send
`

const testTasks = `
validate_message_task:
  description: check {message_content}
  agent: compliance
schedule_reminder_task:
  description: format it
  agent: scheduler
coordinate_reminders_task:
  description: send it
  agent: coordinator
`

func TestLoadDefinition(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "cfg/agents.yaml", []byte(testAgents), 0o644))
	require.NoError(t, afero.WriteFile(fs, "cfg/tasks.yaml", []byte(testTasks), 0o644))

	d, err := LoadDefinition(fs, "cfg")
	require.NoError(t, err)
	tc, ac := d.Stage(TaskValidate)
	assert.Equal(t, "check {message_content}", tc.Description)
	assert.Equal(t, "Compliance", ac.Role)

	tc, _ = d.Stage(TaskCoordinate)
	assert.Equal(t, DefaultOutputFile, tc.OutputFile)
}

func TestLoadDefinitionErrors(t *testing.T) {
	tests := []struct {
		name   string
		agents string
		tasks  string
	}{
		{"missing task", testAgents, "validate_message_task:\n  description: x\n  agent: compliance\n"},
		{"unknown agent", "compliance:\n  role: C\n", testTasks},
		{"bad yaml", testAgents, "validate_message_task: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "cfg/agents.yaml", []byte(tt.agents), 0o644))
			require.NoError(t, afero.WriteFile(fs, "cfg/tasks.yaml", []byte(tt.tasks), 0o644))
			_, err := LoadDefinition(fs, "cfg")
			assert.Error(t, err)
		})
	}

	_, err := LoadDefinition(afero.NewMemMapFs(), "nowhere")
	assert.Error(t, err)

	d, err := LoadDefinition(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Len(t, d.Tasks, 3)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	err := (&Definition{}).Validate()
	require.ErrorIs(t, err, ErrValidationFailed)
	for _, task := range taskOrder {
		assert.Contains(t, err.Error(), task)
	}
}

func TestInterpolate(t *testing.T) {
	in := Inputs{InputPatientID: "PAT-1", InputReminderType: "24h"}
	assert.Equal(t, "patient PAT-1 gets a 24h reminder at {delivery_time}",
		Interpolate("patient {patient_id} gets a {reminder_type} reminder at {delivery_time}", in))
}

func TestInputsFromJSON(t *testing.T) {
	now := time.Date(2025, 11, 18, 9, 0, 0, 500000000, time.UTC)

	in, err := InputsFromJSON([]byte(`{"patient_id":"PAT-1","reminder_type":"24h","appointment_id":42,"extra":"x"}`), now)
	require.NoError(t, err)
	assert.Equal(t, "PAT-1", in.Get(InputPatientID))
	assert.Equal(t, "24h", in.Get(InputReminderType))
	assert.Equal(t, "42", in.Get(InputAppointmentID))
	assert.Equal(t, "", in.Get(InputMessageContent))
	assert.Equal(t, "2025-11-18T09:00:00.5", in.Get(InputCurrentDateTime))
	_, hasExtra := in["extra"]
	assert.False(t, hasExtra)
	assert.Len(t, in, 8)

	_, err = InputsFromJSON([]byte(`not json`), now)
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = InputsFromJSON([]byte(`[1,2]`), now)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestSampleInputsRunClean(t *testing.T) {
	now := time.Date(2025, 11, 18, 7, 0, 0, 0, time.UTC)
	in := SampleInputs(now)
	assert.Equal(t, "2025-11-20 10:00:00", in.Get(InputAppointmentDate))
	assert.Equal(t, "2025-11-18 10:00:00", in.Get(InputDeliveryTime))

	rep := CheckCompliance(ComplianceInput{Message: in.Get(InputMessageContent), PatientID: in.Get(InputPatientID)}, DefaultPolicy(), now)
	assert.True(t, rep.Approved)
}
