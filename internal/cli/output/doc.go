// Package output renders zephyrite-cli results as a table, JSON or YAML.
//
// Results that know their own layout implement Tabler. Other structs render
// as FIELD/VALUE rows and maps as KEY/VALUE rows; JSON and YAML output use
// the json and yaml struct tags.
package output
