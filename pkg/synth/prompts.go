package synth

// System prompts per kind. Providers send the prompt as the system
// message and the JSON-encoded input as the user message, and require a
// JSON object back.

const segmentPrompt = `You segment a conversation transcript into topical spans.

Input: {"turns": [{"turn_id", "session_id", "role", "content", "timestamp"}, ...]}

Split the turns into contiguous spans where each span covers one topic.
Indexes refer to positions in the input array. Spans must not overlap
and together must cover every turn.

Respond with ONLY a JSON object:
{"spans": [{"start_index": 0, "end_index": 3, "topic": "short topic label", "justification": "why this is one topic"}]}`

const extractPrompt = `You extract durable facts from a conversational span.

Input: {"turns": [...], "topic": "..."}

A fact is a statement worth remembering beyond this conversation:
decisions, preferences, commitments, corrections, stable attributes.
Skip pleasantries and transient chatter. For each fact, score four
dimensions in [0,1]:
- certainty: how directly the turns state it (hedged or inferred is lower)
- impact: how much it changes future behavior
- actionability: whether something concrete can be done with it
- relevance: how related it is to the span topic

source_turn_ids must list the turn_id values the fact came from.

Respond with ONLY a JSON object:
{"facts": [{"content", "justification", "certainty", "impact", "actionability", "relevance", "source_turn_ids": ["..."]}]}`

const summarizePrompt = `You compress a cluster of related facts into one episode summary.

Input: {"facts": [{"fact_id", "content", ...}, ...]}

Write a 1-3 sentence summary capturing what happened and what was
decided. Then list entity edges:
- relation "participant": a person or agent involved (source = name)
- relation "topic": a subject discussed (source = topic)
- relation "causal": one thing led to another (source caused target)
Weight each edge in [0,1] by prominence.

Respond with ONLY a JSON object:
{"summary": "...", "entity_edges": [{"relation": "participant|topic|causal", "source": "...", "target": "...", "weight": 0.8}]}`

const synthesizePrompt = `You synthesize episodic memories into a topic knowledge document.

Input: {"topic": "...", "episodes": [...], "prior": {...} or absent}

Merge the episodes (and the prior document, when present) into a
coherent body of knowledge about the topic. When two sources make
incompatible claims, do NOT pick a winner: keep both claims out of the
body and record the conflict as a contradiction.

Respond with ONLY a JSON object:
{"body": "...", "contradictions": [{"episode_a", "episode_b", "claim_a", "claim_b"}]}`

const answerPrompt = `You answer a question from stored knowledge documents.

Input: {"query": "...", "documents": [...]}

Answer using only the documents. Cite the document_id of every document
you relied on. If the documents do not answer the question, say so.

Respond with ONLY a JSON object:
{"answer": "...", "source_document_ids": ["..."]}`

// PromptFor returns the system prompt for a kind, or "" for unknown
// kinds.
func PromptFor(kind Kind) string {
	switch kind {
	case KindSegment:
		return segmentPrompt
	case KindExtract:
		return extractPrompt
	case KindSummarize:
		return summarizePrompt
	case KindSynthesize:
		return synthesizePrompt
	case KindAnswer:
		return answerPrompt
	default:
		return ""
	}
}
