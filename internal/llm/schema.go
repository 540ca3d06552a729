package llm

// The schemas below are JSON-Schema (draft 2020-12 subset) as generic maps.
// They are sent to the model as a structured-output constraint and reused
// locally to validate what comes back.

// BuildParseJSONSchema describes the structured resume a parse call must
// return.
func BuildParseJSONSchema() map[string]any {
	address := objectProp(map[string]any{
		"street":  stringProp(),
		"city":    stringProp(),
		"state":   stringProp(),
		"zipCode": stringProp(),
		"country": stringProp(),
	}, nil)

	contact := objectProp(map[string]any{
		"email":    stringProp(),
		"phone":    stringProp(),
		"address":  address,
		"linkedin": stringProp(),
		"website":  stringProp(),
	}, nil)

	name := objectProp(map[string]any{
		"first": stringProp(),
		"last":  stringProp(),
		"full":  stringProp(),
	}, nil)

	experience := map[string]any{
		"type": "array",
		"items": objectProp(map[string]any{
			"title":            stringProp(),
			"company":          stringProp(),
			"location":         stringProp(),
			"start_date":       stringProp(),
			"end_date":         stringProp(),
			"responsibilities": stringArrayProp(),
		}, []string{"title", "company"}),
	}

	education := map[string]any{
		"type": "array",
		"items": objectProp(map[string]any{
			"degree":         stringProp(),
			"institution":    stringProp(),
			"location":       stringProp(),
			"graduationYear": stringProp(),
		}, nil),
	}

	skills := objectProp(map[string]any{
		"technical": map[string]any{
			"type": "array",
			"items": objectProp(map[string]any{
				"category": stringProp(),
				"items":    stringArrayProp(),
			}, nil),
		},
		"soft": stringArrayProp(),
		"languages": map[string]any{
			"type": "array",
			"items": objectProp(map[string]any{
				"language":    stringProp(),
				"proficiency": stringProp(),
			}, nil),
		},
	}, nil)

	certifications := map[string]any{
		"type": "array",
		"items": objectProp(map[string]any{
			"name":      stringProp(),
			"issuer":    stringProp(),
			"issueDate": stringProp(),
		}, nil),
	}

	return objectProp(map[string]any{
		"personalInfo": objectProp(map[string]any{
			"name":    name,
			"contact": contact,
		}, nil),
		"summary": objectProp(map[string]any{
			"text":          stringProp(),
			"careerLevel":   stringProp(),
			"industryFocus": stringProp(),
		}, nil),
		"experience":     experience,
		"education":      education,
		"skills":         skills,
		"certifications": certifications,
	}, []string{"personalInfo"})
}

// BuildBiasJSONSchema describes a bias screening report.
func BuildBiasJSONSchema() map[string]any {
	return objectProp(map[string]any{
		"biasDetected": map[string]any{"type": "boolean"},
		"findings": map[string]any{
			"type": "array",
			"items": objectProp(map[string]any{
				"category": stringProp(),
				"text":     stringProp(),
				"severity": stringProp(),
			}, []string{"category", "text"}),
		},
	}, []string{"biasDetected", "findings"})
}

// BuildSalaryJSONSchema describes a compensation estimate.
func BuildSalaryJSONSchema() map[string]any {
	return objectProp(map[string]any{
		"min":      map[string]any{"type": "number", "minimum": 0},
		"max":      map[string]any{"type": "number", "minimum": 0},
		"currency": map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"comments": stringProp(),
	}, []string{"min", "max", "currency"})
}

// BuildCareerJSONSchema describes a career progression suggestion.
func BuildCareerJSONSchema() map[string]any {
	return objectProp(map[string]any{
		"suggestedNextRoles": stringArrayProp(),
		"improvementAreas":   stringArrayProp(),
		"comments":           stringProp(),
	}, []string{"suggestedNextRoles", "improvementAreas"})
}

func stringProp() map[string]any {
	return map[string]any{"type": "string"}
}

func stringArrayProp() map[string]any {
	return map[string]any{"type": "array", "items": stringProp()}
}

func objectProp(props map[string]any, required []string) map[string]any {
	obj := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		obj["required"] = required
	}
	return obj
}
