package domain

// University is immutable once fetched.
type University struct {
	ID        string  `json:"id" dynamodbav:"university_id"`
	Domain    string  `json:"domain" dynamodbav:"domain"`
	Name      string  `json:"name" dynamodbav:"name"`
	ShortName *string `json:"short_name,omitempty" dynamodbav:"short_name,omitempty"`
	URL       *string `json:"url,omitempty" dynamodbav:"url,omitempty"`
}
