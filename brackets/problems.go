package brackets

import (
	"math/rand"

	"github.com/cfarena/tournament-system/models"
)

// problemPool is the fixed candidate set matches draw from. Problems are
// sampled with replacement, so the same problem may show up in more than one
// match of a bracket.
var problemPool = []models.Problem{
	{Contest: 1850, Index: "A", Name: "To My Critics", Rating: 800},
	{Contest: 1849, Index: "B", Name: "Comparison String", Rating: 900},
	{Contest: 1847, Index: "C", Name: "Vampiric Powers", Rating: 1000},
	{Contest: 1846, Index: "D", Name: "Rudolph and Christmas Tree", Rating: 1200},
	{Contest: 1845, Index: "A", Name: "Forbidden Integer", Rating: 800},
	{Contest: 1844, Index: "B", Name: "Permutations & Primes", Rating: 1000},
	{Contest: 1843, Index: "A", Name: "Sasha and Array Coloring", Rating: 800},
	{Contest: 1842, Index: "B", Name: "Tenzin and Books", Rating: 900},
}

func randomProblem() *models.Problem {
	p := problemPool[rand.Intn(len(problemPool))]
	return &p
}
