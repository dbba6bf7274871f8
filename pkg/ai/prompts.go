package ai

// SummarizePrompt is applied to a single chunk of a document.
const SummarizePrompt = `Summarize the following research paper:

%s...`

// AnswerPrompt grounds a question in a single piece of context.
const AnswerPrompt = `The following is a research paper:

%s...

Answer this question: %s`

// SummarizeReducePrompt merges partial chunk summaries into one summary.
const SummarizeReducePrompt = `
# Task Context
You are given partial summaries of consecutive sections of one research paper, in document order.

# Background Data
%s

# Immediate Task Description or Request
Write a single coherent summary of the whole paper that synthesizes the partial summaries.
Some sections may be marked as unavailable; ignore those markers and do not mention them.

# Output Formatting
Return only the summary text.
`

// AnswerReducePrompt merges partial chunk answers into one answer.
const AnswerReducePrompt = `
# Task Context
The user asked: %s

# Background Data
Here are partial answers from different chunks of the document, in document order:
%s

# Immediate Task Description or Request
Please provide a final, comprehensive answer to the user's question.
Some chunks may be marked as unavailable; ignore those markers and do not mention them.

# Output Formatting
Return only the answer text.
`

// EntityExtractionPrompt is the fixed system instruction of the entity
// extractor. The response must consist of exactly two lines.
const EntityExtractionPrompt = `You are a text entity extractor. Your role is to parse the given text,
identify all of the entities in the text, and return a list of all unique entities.
The entities should be unique. A single entity can appear in different formats in the text, so if any two conceptually mean the same thing, make sure no duplicates appear.
Provide one list with unique items with the header "Unique Entities".
Provide another list with the header "Duplicate Entities" and this format: (kept entity:omitted duplicate entities with commas).
Respond with exactly two lines:
Unique Entities: <entity>,<entity>,...
Duplicate Entities: (<kept>:<omitted>,<omitted>),...
Do not provide extra information. Only provide comma separated lists without spaces around commas.`

// EntityExtractionStructuredPrompt is used with schema constrained output.
const EntityExtractionStructuredPrompt = `
# Task Context
You are a text entity extractor.

# Background Data
%s

# Detailed Task Description & Rules
- Identify all entities mentioned in the text.
- A single entity can appear in different surface forms; if two forms conceptually mean the same thing keep one.
- List every omitted surface form under the kept entity.

# Output Formatting
Return a JSON object with this structure:
{
  "uniqueEntities": ["<entity>", "<entity>"],
  "duplicates": [
    {
      "canonicalName": "<kept entity>",
      "entities": ["<omitted>", "<omitted>"]
    }
  ]
}
`
