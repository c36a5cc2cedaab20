package outbox

const shiftOpenedSchema = `{
  "type": "object",
  "title": "ShiftOpened",
  "properties": {
    "shift_id": {"type": "string"},
    "trainer_id": {"type": "string"},
    "trainer_name": {"type": "string"},
    "start_time": {"type": "string", "format": "date-time"}
  },
  "required": ["shift_id", "trainer_id", "trainer_name", "start_time"],
  "additionalProperties": false
}`

const shiftClosedSchema = `{
  "type": "object",
  "title": "ShiftClosed",
  "properties": {
    "shift_id": {"type": "string"},
    "trainer_id": {"type": "string"},
    "start_time": {"type": "string", "format": "date-time"},
    "end_time": {"type": "string", "format": "date-time"},
    "auto_ended": {"type": "boolean"},
    "flagged_for_review": {"type": "boolean"}
  },
  "required": ["shift_id", "trainer_id", "start_time", "end_time", "auto_ended", "flagged_for_review"],
  "additionalProperties": false
}`
