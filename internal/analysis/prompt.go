package analysis

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

const promptBodyChars = 4000

const promptTemplate = `Analyze this AWS DevOps learning content and provide a structured assessment.

Title: %s

Description: %s

Content: %s

Please provide your analysis in the following JSON format:
{
  "summary": "A concise 2-3 sentence summary of the main topic",
  "difficulty_level": "beginner|intermediate|advanced",
  "quality_scores": {
    "technical_depth": 0.0-1.0,
    "practical_value": 0.0-1.0,
    "clarity_score": 0.0-1.0,
    "up_to_dateness": 0.0-1.0
  },
  "aws_services": ["service1", "service2"],
  "topics": ["topic1", "topic2", "topic3"],
  "categories": ["category1", "category2"],
  "key_takeaways": ["takeaway1", "takeaway2", "takeaway3"],
  "target_audience": "Brief description of who would benefit most",
  "estimated_reading_time": minutes as integer
}

Quality score definitions:
- technical_depth: How deep/advanced the technical concepts are (0=superficial, 1=very deep)
- practical_value: How practically useful/applicable the content is (0=theoretical only, 1=highly practical)
- clarity_score: How clear and well-explained the content is (0=confusing, 1=very clear)
- up_to_dateness: How current and relevant the content is (0=outdated, 1=very current)

Respond ONLY with valid JSON, no additional text.`

// BuildPrompt renders the scoring prompt. The body is cut to its first 4000 characters.
func BuildPrompt(req Request) string {
	return fmt.Sprintf(promptTemplate, req.Title, req.Description, textutil.Truncate(req.Body, promptBodyChars))
}
