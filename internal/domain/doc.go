// Package domain models the air-quality and EPA budget tables behind the
// dashboards and the pure functions that clean and query them.
//
// # Data Sources
//
// Every dataset is one or more CSV files fetched whole from a static URL or a
// local path. Nothing is streamed or paginated; a dataset is rebuilt from all of
// its sources at once and cached by the pipeline package.
//
//	county         one file per year, conreport2000.csv .. conreport2023.csv.
//	               Columns: "County Code", "County", then one column per
//	               pollutant ("CO 8-hr (ppm)", "PM2.5 Wtd AM (µg/m³)", ...).
//	               The year is not a column; it is the per-source constant.
//	city           one wide file, airqualitybycity2000-2023.csv. Columns:
//	               "CBSA", "Core Based Statistical Area", "Pollutant",
//	               "Trend Statistic", then one column per year "2000".."2023".
//	               CBSA and its name are only written on the first row of each
//	               city block and must be filled down.
//	epa-grants     one row per award; "State" may hold a delimited list
//	               ("IN, OH") when a project spans states; "Amount" is a currency
//	               string in thousands of dollars.
//	epa-workforce  wide counts per office and metric, one column per fiscal year.
//
// # Conventions
//
// Missing values:
//
//	"." is the reporting agency's placeholder for "no reading". Empty cells mean
//	the same. Both become a missing [Value], which is distinct from zero.
//
// Currency:
//
//	"$1,234.00" is parsed by stripping the symbol and thousands separators and
//	then multiplied by the dataset's declared scale exactly once. The parsed
//	result is an [Amount]; there is no way to scale an Amount again.
//
// Years:
//
//	Each dataset declares a single [YearRule]. Mixing rules across the sources
//	of one dataset is not possible: the rule lives on the dataset, not the source.
//
// Trend statistic:
//
//	The aggregation under which a pollutant's yearly value was computed
//	("Annual Mean", "2nd Max", "98th Percentile"). In the city dataset the pair
//	(Pollutant, Trend Statistic) forms the series dimension, e.g. "CO - 2nd Max".
//
// # Series policies
//
// A trend line needs at least MinSamples (default 3) non-missing yearly
// observations, otherwise selection returns [ErrInsufficientData]. Concentration
// datasets omit years without a reading; cumulative workforce and budget
// datasets zero-fill them to keep a continuous year axis.
package domain
