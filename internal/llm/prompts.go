package llm

const classifyRelationsPrompt = `You are a knowledge revision system. Compare a new statement against existing candidate statements and classify the relationship with each candidate.

New statement:
%s

Candidates:
%s

For each candidate, determine the relation:
- "identical": same claim, possibly worded differently
- "similar": closely related claim about the same subject, but not the same claim
- "contradictory": the two claims cannot both be true
- "unrelated": no meaningful relationship

Also provide:
- score: 0.0-1.0 strength of the classification
- reasoning: brief justification

Respond ONLY with a JSON array covering every candidate. No markdown, no explanation. Example:
[{"id":"uuid","relation":"identical","score":0.95,"reasoning":"Same claim reworded"}]`

const extractPropositionsPrompt = `You are a proposition extraction system. Analyze the following transcript and extract distinct factual propositions.

For each proposition, determine:
- text: a clear, self-contained statement
- confidence: 0.0-1.0 how strongly the transcript supports it (explicit statements score high, inferences score lower)
- decay: 0.0-1.0 how quickly it goes stale ("user is currently debugging" decays fast, "user's name is Ada" barely decays)
- importance: 0.0-1.0 how much it matters for future interactions

Respond ONLY with a JSON array. No markdown, no explanation. Example:
[{"text":"User prefers tabs over spaces","confidence":0.9,"decay":0.2,"importance":0.6}]

If no propositions can be extracted, respond with an empty array: []

Transcript:
%s`
