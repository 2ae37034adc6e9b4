package variation

// Choose k from n items can be done in this many ways. It is the number of
// distinct genotypes in a call of ploidy k over n alleles when used as
// Choose(n+k-1, k). Originally derived from
// github.com/limix/bgen /src/util/choose.c
func Choose(n, k int) int {
	if n == 3 && k == 1 {
		// Fastest path, since this is the usual result
		return 3
	} else if k == 1 {
		return n
	}

	ans := 1

	if k > n-k {
		k = n - k
	}

	for j := 1; j <= k; j++ {
		if n%j == 0 {
			ans *= n / j
		} else if ans%j == 0 {
			ans = ans / j * n
		} else {
			ans = (ans * n) / j
		}

		n--
	}

	return ans
}

// NumGenotypes is the number of unordered genotypes of the given ploidy that
// can be formed from nAlleles alleles.
func NumGenotypes(nAlleles, ploidy int) int {
	if nAlleles < 1 || ploidy < 1 {
		return 0
	}
	return Choose(nAlleles+ploidy-1, ploidy)
}

func WhichSQLiteDriver() string {
	return whichSQLiteDriver
}
