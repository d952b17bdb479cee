package prompts

// RoundLimitApology is the user-facing message returned when a turn
// exhausts its tool-round ceiling without producing a terminal answer.
const RoundLimitApology = "I wasn't able to finish researching that within my limits. Could you narrow the question so I can dig in further?"

// EmptyResponseFallback is the user-facing message returned when the
// model produces no content at the end of a turn.
const EmptyResponseFallback = "I processed your request but wasn't able to compose a response. Please try again."
