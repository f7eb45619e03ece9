package features

// Lookup tables for categorical intake answers. Keys are the option labels shown
// on the intake form; values are the codes the models were trained on.

var regionCodes = map[string]float32{
	"NCR":                             1,
	"CAR":                             2,
	"Region I – Ilocos":               3,
	"Region II – Cagayan Valley":      4,
	"Region III – Central Luzon":      5,
	"Region IV-A – CALABARZON":        6,
	"Region IV-B – MIMAROPA":          7,
	"Region V – Bicol":                8,
	"Region VI – Western Visayas":     9,
	"Region VII – Central Visayas":    10,
	"Region VIII – Eastern Visayas":   11,
	"Region IX – Zamboanga Peninsula": 12,
	"Region X – Northern Mindanao":    13,
	"Region XI – Davao Region":        14,
	"Region XII – SOCCSKSARGEN":       15,
	"Region XIII – Caraga":            16,
	"BARMM":                           17,
}

var educationCodes = map[string]float32{
	"No formal education":   0,
	"Primary":               1,
	"Secondary":             2,
	"Senior High School":    3,
	"Vocational/Technical":  4,
	"College Undergraduate": 5,
	"College Graduate":      6,
}

var religionCodes = map[string]float32{
	"Roman Catholic":    1,
	"Christian":         2,
	"Muslim":            3,
	"Iglesia ni Cristo": 4,
	"No Religion":       5,
	"Other Religion":    6,
	"Prefer not to say": 7,
}

var ethnicityCodes = map[string]float32{
	"Tagalog": 1,
	"Cebuano": 2,
	"Ilocano": 3,
}

var maritalCodes = map[string]float32{
	"Single":              0,
	"Married":             1,
	"Living with partner": 2,
	"Separated":           3,
	"Divorced":            4,
	"Widowed":             5,
}

var yesNoCodes = map[string]float32{
	"Yes": 1,
	"No":  0,
}

var householdHeadSexCodes = map[string]float32{
	"Male":        1,
	"Female":      2,
	"Shared/Both": 3,
	"Others":      4,
}

var occupationCodes = map[string]float32{
	"Unemployed": 0,
	"Student":    1,
	"Farmer":     2,
	"Others":     3,
}

var smokingCodes = map[string]float32{
	"Never":             0,
	"Former smoker":     1,
	"Occasional smoker": 2,
	"Current daily":     3,
}

var desireCodes = map[string]float32{
	"Yes":      1,
	"No":       0,
	"Not Sure": 2,
}

var lastMethodCodes = map[string]float32{
	"None":                      0,
	"Pills":                     1,
	"Condom":                    2,
	"Copper IUD":                3,
	"Intrauterine Device (IUD)": 4,
	"Implant":                   5,
	"Patch":                     6,
	"Injectable":                7,
	"Withdrawal":                8,
}

var reasonCodes = map[string]float32{
	"None / Not Applicable":     0,
	"Side effects":              1,
	"Health concerns":           2,
	"Desire to become pregnant": 3,
}
